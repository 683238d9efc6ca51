package memory

import (
	"context"
	"testing"
	"time"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
)

func TestSessionStore_ReturnsIsolatedCopies(t *testing.T) {
	store := NewSessionStore(time.Hour)
	ctx := context.Background()

	a, err := store.GetOrCreate(ctx, "a", domain.ChannelWeb, "en")
	if err != nil {
		t.Fatalf("GetOrCreate returned error: %v", err)
	}
	a.Collected[domain.FieldFirstName] = "Peter"

	again, _ := store.GetOrCreate(ctx, "a", domain.ChannelWeb, "en")
	if _, ok := again.Collected[domain.FieldFirstName]; ok {
		t.Fatal("unsaved mutation leaked into store")
	}

	if err := store.Save(ctx, a); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	b, _ := store.GetOrCreate(ctx, "b", domain.ChannelWeb, "en")
	if len(b.Collected) != 0 {
		t.Fatalf("session b observed another session's fields: %v", b.Collected)
	}
}

func TestSessionStore_SweepExpired(t *testing.T) {
	store := NewSessionStore(time.Hour)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, key := range []string{"idle", "locked", "fresh"} {
		s, _ := store.GetOrCreate(ctx, key, domain.ChannelWeb, "en")
		if key != "fresh" {
			s.Touch(now.Add(-time.Hour))
		}
		_ = store.Save(ctx, s)
	}

	expired, err := store.SweepExpired(ctx, 30*time.Minute, now, func(key string) (func(), bool) {
		return func() {}, key != "locked"
	})
	if err != nil {
		t.Fatalf("SweepExpired returned error: %v", err)
	}
	if len(expired) != 1 || expired[0].Key != "idle" || expired[0].Status != domain.SessionStatusExpired {
		t.Fatalf("unexpected sweep result: %+v", expired)
	}

	locked, _ := store.GetOrCreate(ctx, "locked", domain.ChannelWeb, "en")
	if locked.Status != domain.SessionStatusActive {
		t.Fatalf("locked session swept: %s", locked.Status)
	}

	// Terminal records past retention are purged.
	if _, err := store.SweepExpired(ctx, 30*time.Minute, now.Add(2*time.Hour), func(string) (func(), bool) { return nil, false }); err != nil {
		t.Fatalf("SweepExpired returned error: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("expected expired record purged, %d left", store.Len())
	}
}

func TestDeliveryDeduplicator(t *testing.T) {
	dedup := NewDeliveryDeduplicator()
	ctx := context.Background()

	first, _ := dedup.Claim(ctx, "m1", time.Minute)
	second, _ := dedup.Claim(ctx, "m1", time.Minute)
	if !first.Claimed || second.Claimed || second.Done {
		t.Fatalf("unexpected claims %+v %+v", first, second)
	}
	_ = dedup.Complete(ctx, "m1", "hi", time.Minute)
	third, _ := dedup.Claim(ctx, "m1", time.Minute)
	if !third.Done || third.Reply != "hi" {
		t.Fatalf("expected replay, got %+v", third)
	}
}
