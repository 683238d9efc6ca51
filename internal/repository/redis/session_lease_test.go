package redis

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSessionLeases_TryAcquireIsExclusive(t *testing.T) {
	client, _ := newTestRedis(t)
	leases := NewSessionLeases(client, SessionLeaseConfig{KeyPrefix: "test"})
	ctx := context.Background()

	release, ok, err := leases.TryAcquire(ctx, "web:tok-1")
	if err != nil || !ok {
		t.Fatalf("expected first TryAcquire to succeed, got ok=%v err=%v", ok, err)
	}
	if _, ok, _ := leases.TryAcquire(ctx, "web:tok-1"); ok {
		t.Fatalf("expected held lease to be refused")
	}
	if other, ok, _ := leases.TryAcquire(ctx, "web:tok-2"); !ok {
		t.Fatalf("expected a different key to be free")
	} else {
		other()
	}

	release()
	again, ok, err := leases.TryAcquire(ctx, "web:tok-1")
	if err != nil || !ok {
		t.Fatalf("expected lease free after release, got ok=%v err=%v", ok, err)
	}
	again()
}

func TestSessionLeases_StaleReleaseKeepsNewHolder(t *testing.T) {
	client, server := newTestRedis(t)
	leases := NewSessionLeases(client, SessionLeaseConfig{KeyPrefix: "test", TTL: time.Second})
	ctx := context.Background()

	stale, ok, _ := leases.TryAcquire(ctx, "messaging:+38641348050")
	if !ok {
		t.Fatalf("expected lease")
	}
	server.FastForward(2 * time.Second)

	_, ok, _ = leases.TryAcquire(ctx, "messaging:+38641348050")
	if !ok {
		t.Fatalf("expected expired lease to be taken over")
	}
	stale()

	if !server.Exists("test:messaging:+38641348050") {
		t.Fatalf("stale holder released the new holder's lease")
	}
}

func TestSessionLeases_AcquireWaitsForRelease(t *testing.T) {
	client, _ := newTestRedis(t)
	leases := NewSessionLeases(client, SessionLeaseConfig{KeyPrefix: "test", Poll: 5 * time.Millisecond})
	ctx := context.Background()

	release, ok, _ := leases.TryAcquire(ctx, "web:tok-1")
	if !ok {
		t.Fatalf("expected lease")
	}
	time.AfterFunc(30*time.Millisecond, release)

	acquireCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	next, err := leases.Acquire(acquireCtx, "web:tok-1")
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	next()
}

func TestSessionLeases_AcquireHonoursContext(t *testing.T) {
	client, _ := newTestRedis(t)
	leases := NewSessionLeases(client, SessionLeaseConfig{KeyPrefix: "test", Poll: 5 * time.Millisecond})

	release, ok, _ := leases.TryAcquire(context.Background(), "web:tok-1")
	if !ok {
		t.Fatalf("expected lease")
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := leases.Acquire(ctx, "web:tok-1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
