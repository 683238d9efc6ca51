package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
)

type delivery struct {
	done      bool
	reply     string
	expiresAt time.Time
}

// DeliveryDeduplicator remembers webhook message ids in process.
type DeliveryDeduplicator struct {
	mu      sync.Mutex
	entries map[string]delivery
	now     func() time.Time
}

// NewDeliveryDeduplicator returns an empty deduplicator.
func NewDeliveryDeduplicator() *DeliveryDeduplicator {
	return &DeliveryDeduplicator{entries: make(map[string]delivery), now: time.Now}
}

func (d *DeliveryDeduplicator) Claim(_ context.Context, messageID string, ttl time.Duration) (port.DeliveryClaim, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if entry, ok := d.entries[messageID]; ok && now.Before(entry.expiresAt) {
		return port.DeliveryClaim{Done: entry.done, Reply: entry.reply}, nil
	}
	d.entries[messageID] = delivery{expiresAt: now.Add(ttl)}
	return port.DeliveryClaim{Claimed: true}, nil
}

func (d *DeliveryDeduplicator) Complete(_ context.Context, messageID, reply string, ttl time.Duration) error {
	d.mu.Lock()
	d.entries[messageID] = delivery{done: true, reply: reply, expiresAt: d.now().Add(ttl)}
	d.mu.Unlock()
	return nil
}

func (d *DeliveryDeduplicator) Release(_ context.Context, messageID string) error {
	d.mu.Lock()
	delete(d.entries, messageID)
	d.mu.Unlock()
	return nil
}

var _ port.MessageDeduplicator = (*DeliveryDeduplicator)(nil)
