package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/repository"
)

const (
	defaultLeasePrefix = "onboarding:lease"
	defaultLeaseTTL    = 30 * time.Second
	defaultLeasePoll   = 25 * time.Millisecond
	leaseReleaseWait   = 2 * time.Second
)

// Deletes the lease only while it still carries the holder's token.
var releaseLease = red.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SessionLeaseConfig tunes lease keys and timing.
type SessionLeaseConfig struct {
	KeyPrefix string
	// TTL must outlast the longest turn; an expired lease is free to take.
	TTL time.Duration
	// Poll is the retry interval of Acquire.
	Poll time.Duration
}

// SessionLeases hands out per-session leases with SET NX PX so turns in
// different API processes and the operator sweep never overlap.
type SessionLeases struct {
	client *red.Client
	cfg    SessionLeaseConfig
}

// NewSessionLeases constructs the lease table.
func NewSessionLeases(client *red.Client, cfg SessionLeaseConfig) *SessionLeases {
	cfg.KeyPrefix = strings.TrimSpace(cfg.KeyPrefix)
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultLeasePrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultLeaseTTL
	}
	if cfg.Poll <= 0 {
		cfg.Poll = defaultLeasePoll
	}
	return &SessionLeases{client: client, cfg: cfg}
}

// TryAcquire takes the lease for key if it is free.
func (l *SessionLeases) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	if key == "" {
		return nil, false, fmt.Errorf("session key is required")
	}
	token := ulid.Make().String()
	ok, err := l.client.SetNX(ctx, l.key(key), token, l.cfg.TTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx lease: %w: %w", repository.ErrUnavailable, err)
	}
	if !ok {
		return nil, false, nil
	}
	return l.releaser(key, token), true, nil
}

// Acquire polls until the lease for key is free or ctx is done.
func (l *SessionLeases) Acquire(ctx context.Context, key string) (func(), error) {
	ticker := time.NewTicker(l.cfg.Poll)
	defer ticker.Stop()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		release, ok, err := l.TryAcquire(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return release, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *SessionLeases) releaser(key, token string) func() {
	return func() {
		// Released after the turn's context may be gone.
		ctx, cancel := context.WithTimeout(context.Background(), leaseReleaseWait)
		defer cancel()
		_ = releaseLease.Run(ctx, l.client, []string{l.key(key)}, token).Err()
	}
}

func (l *SessionLeases) key(sessionKey string) string {
	return l.cfg.KeyPrefix + ":" + sessionKey
}

var _ port.SessionLease = (*SessionLeases)(nil)
