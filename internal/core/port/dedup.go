package port

import (
	"context"
	"time"
)

// DeliveryClaim reports the state of a provider message id.
type DeliveryClaim struct {
	// Claimed is true when the caller owns the first processing attempt.
	Claimed bool
	// Done is true when an earlier attempt finished; Reply holds its answer.
	Done  bool
	Reply string
}

// MessageDeduplicator guards webhook deliveries against provider retries.
type MessageDeduplicator interface {
	Claim(ctx context.Context, messageID string, ttl time.Duration) (DeliveryClaim, error)
	Complete(ctx context.Context, messageID, reply string, ttl time.Duration) error
	Release(ctx context.Context, messageID string) error
}
