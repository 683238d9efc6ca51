package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
)

func TestSweeperExpiresIdleSessionsAndSkipsLockedOnes(t *testing.T) {
	h := newHarness(t)
	h.send("session-idle", "Peter")
	h.send("session-busy", "Ana")

	sweeper := NewSessionSweeper(h.store, h.controller.Locks(), 30*time.Minute, time.Minute, h.events, nil, nil).WithClock(h.clock.Now)

	count, err := sweeper.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce returned error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected nothing expired before the idle window, got %d", count)
	}

	h.clock.Advance(31 * time.Minute)
	release, ok := h.controller.Locks().TryLock(domain.StoreKey(domain.ChannelWeb, "session-busy"))
	if !ok {
		t.Fatalf("expected to take the lock")
	}

	count, err = sweeper.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one expired session, got %d", count)
	}
	if got := h.session("session-idle"); got.Status != domain.SessionStatusExpired || len(got.Collected) != 0 {
		t.Fatalf("expected idle session expired and anonymized, got %+v", got)
	}
	if got := h.session("session-busy"); got.Status != domain.SessionStatusActive {
		t.Fatalf("locked session must not be expired, got %s", got.Status)
	}

	release()
	count, err = sweeper.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected the released session to expire on the next pass, got %d", count)
	}

	statuses := h.events.closedStatuses()
	if len(statuses) != 2 || statuses[0] != domain.SessionStatusExpired {
		t.Fatalf("expected two expired events, got %v", statuses)
	}
}

func TestExpiredSessionRestartsOnNextMessage(t *testing.T) {
	h := newHarness(t)
	h.send(sessionKey, "Peter")
	h.clock.Advance(time.Hour)

	sweeper := NewSessionSweeper(h.store, h.controller.Locks(), 30*time.Minute, time.Minute, nil, nil, nil).WithClock(h.clock.Now)
	if _, err := sweeper.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce returned error: %v", err)
	}

	reply := h.send(sessionKey, "Horvat")
	if reply.Status != domain.SessionStatusActive {
		t.Fatalf("expected a fresh session, got %s", reply.Status)
	}
	if got := h.session(sessionKey).Collected[domain.FieldFirstName]; got != "Horvat" {
		t.Fatalf("expected the new session to start from the first field, got %q", got)
	}
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	sweeper := NewSessionSweeper(h.store, nil, time.Minute, 5*time.Millisecond, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop after cancel")
	}
}

func TestSweeperSkipsSessionsLeasedByAnotherProcess(t *testing.T) {
	leases := newFakeLeases()
	h := newHarness(t, withLeases(leases))
	h.send(sessionKey, "Peter")
	h.clock.Advance(time.Hour)

	// Another API process is mid-turn: it holds the lease but not this process's lock.
	storeKey := domain.StoreKey(domain.ChannelWeb, sessionKey)
	release, ok, _ := leases.TryAcquire(context.Background(), storeKey)
	if !ok {
		t.Fatalf("expected to take the lease")
	}

	sweeper := NewSessionSweeper(h.store, nil, 30*time.Minute, time.Minute, h.events, nil, nil).
		WithClock(h.clock.Now).
		WithLeases(leases)
	count, err := sweeper.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce returned error: %v", err)
	}
	if count != 0 || h.session(sessionKey).Status != domain.SessionStatusActive {
		t.Fatalf("leased session must not be expired, got count %d", count)
	}
	if len(h.events.closedStatuses()) != 0 {
		t.Fatalf("no close event expected while leased")
	}

	release()
	count, err = sweeper.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce returned error: %v", err)
	}
	if count != 1 || h.session(sessionKey).Status != domain.SessionStatusExpired {
		t.Fatalf("expected the session expired once the lease was free, got count %d", count)
	}
	if leases.isHeld(storeKey) {
		t.Fatalf("sweeper must release the lease")
	}
}
