package usecase

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestKeyedMutexTryLock(t *testing.T) {
	m := NewKeyedMutex()
	release, ok := m.TryLock("a")
	if !ok {
		t.Fatalf("expected free key to lock")
	}
	if _, ok := m.TryLock("a"); ok {
		t.Fatalf("expected held key to refuse")
	}
	other, ok := m.TryLock("b")
	if !ok {
		t.Fatalf("expected independent key to lock")
	}
	release()
	release()
	other()
	if m.Len() != 0 {
		t.Fatalf("expected table drained, got %d", m.Len())
	}
}

func TestKeyedMutexLockHonoursContext(t *testing.T) {
	m := NewKeyedMutex()
	release, err := m.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("Lock returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := m.Lock(ctx, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		next, err := m.Lock(context.Background(), "a")
		if err == nil {
			next()
		}
		close(acquired)
	}()
	time.Sleep(5 * time.Millisecond)
	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("waiter never acquired the released lock")
	}
	if m.Len() != 0 {
		t.Fatalf("expected table drained, got %d", m.Len())
	}
}
