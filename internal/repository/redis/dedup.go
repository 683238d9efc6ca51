package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/repository"
)

const defaultDedupPrefix = "onboarding:webhook"

type deliveryRecord struct {
	State string `json:"state"`
	Reply string `json:"reply,omitempty"`
}

const (
	deliveryPending = "pending"
	deliveryDone    = "done"
)

// DeliveryDeduplicator records webhook message ids so provider retries
// replay the stored reply instead of advancing the conversation twice.
type DeliveryDeduplicator struct {
	client *red.Client
	prefix string
}

// NewDeliveryDeduplicator constructs a Redis-backed deduplicator.
func NewDeliveryDeduplicator(client *red.Client, keyPrefix string) *DeliveryDeduplicator {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultDedupPrefix
	}
	return &DeliveryDeduplicator{client: client, prefix: prefix}
}

// Claim marks the message id as in flight unless it was seen before.
func (d *DeliveryDeduplicator) Claim(ctx context.Context, messageID string, ttl time.Duration) (port.DeliveryClaim, error) {
	if messageID == "" {
		return port.DeliveryClaim{}, fmt.Errorf("message id is required")
	}
	if ttl <= 0 {
		return port.DeliveryClaim{}, fmt.Errorf("ttl must be positive")
	}

	pending, _ := json.Marshal(deliveryRecord{State: deliveryPending})
	claimed, err := d.client.SetNX(ctx, d.key(messageID), pending, ttl).Result()
	if err != nil {
		return port.DeliveryClaim{}, fmt.Errorf("redis setnx delivery: %w: %w", repository.ErrUnavailable, err)
	}
	if claimed {
		return port.DeliveryClaim{Claimed: true}, nil
	}

	raw, err := d.client.Get(ctx, d.key(messageID)).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			// Expired between SETNX and GET; treat as in flight, the provider will retry.
			return port.DeliveryClaim{}, nil
		}
		return port.DeliveryClaim{}, fmt.Errorf("redis get delivery: %w: %w", repository.ErrUnavailable, err)
	}

	var record deliveryRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return port.DeliveryClaim{}, fmt.Errorf("decode delivery: %w: %w", repository.ErrCorrupt, err)
	}
	return port.DeliveryClaim{Done: record.State == deliveryDone, Reply: record.Reply}, nil
}

// Complete stores the reply produced for the message id.
func (d *DeliveryDeduplicator) Complete(ctx context.Context, messageID, reply string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}
	payload, err := json.Marshal(deliveryRecord{State: deliveryDone, Reply: reply})
	if err != nil {
		return fmt.Errorf("encode delivery: %w", err)
	}
	if err := d.client.Set(ctx, d.key(messageID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set delivery: %w: %w", repository.ErrUnavailable, err)
	}
	return nil
}

// Release forgets an in-flight claim so a retry can process the message.
func (d *DeliveryDeduplicator) Release(ctx context.Context, messageID string) error {
	if err := d.client.Del(ctx, d.key(messageID)).Err(); err != nil {
		return fmt.Errorf("redis del delivery: %w: %w", repository.ErrUnavailable, err)
	}
	return nil
}

func (d *DeliveryDeduplicator) key(messageID string) string {
	return fmt.Sprintf("%s:%s", d.prefix, messageID)
}

var _ port.MessageDeduplicator = (*DeliveryDeduplicator)(nil)
