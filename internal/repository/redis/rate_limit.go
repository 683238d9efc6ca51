package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
)

var errNonPositiveWindow = errors.New("rate limit window must be positive")

// SlidingWindowConfig defines configuration for the sliding window limiter.
type SlidingWindowConfig struct {
	KeyPrefix string
	// TTL bounds how long an idle sender's attempts survive; it should be at
	// least one window.
	TTL time.Duration
}

// RateLimitRepository keeps turn attempts per sender or client IP in a
// sorted set scored by unix milliseconds.
type RateLimitRepository struct {
	client *red.Client
	cfg    SlidingWindowConfig
}

// NewRateLimitRepository constructs a repository using the provided Redis client and config.
func NewRateLimitRepository(client *red.Client, cfg SlidingWindowConfig) *RateLimitRepository {
	return &RateLimitRepository{client: client, cfg: cfg}
}

// RecordAttempt adds one attempt and refreshes the TTL atomically. Each
// member is a ULID so attempts in the same millisecond stay distinct.
func (r *RateLimitRepository) RecordAttempt(ctx context.Context, identifier string, at time.Time) error {
	key := r.key(identifier)
	_, err := r.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.ZAdd(ctx, key, red.Z{Score: float64(at.UnixMilli()), Member: ulid.Make().String()})
		if r.cfg.TTL > 0 {
			pipe.Expire(ctx, key, r.cfg.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// CountAttempts counts attempts in (reference-window, reference].
func (r *RateLimitRepository) CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	lo, hi, err := windowBounds(window, reference)
	if err != nil {
		return 0, err
	}
	n, err := r.client.ZCount(ctx, r.key(identifier), lo, hi).Result()
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return int(n), nil
}

// TrimWindow drops attempts that fell out of the window.
func (r *RateLimitRepository) TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error {
	if window <= 0 {
		return errNonPositiveWindow
	}
	cutoff := strconv.FormatInt(reference.Add(-window).UnixMilli(), 10)
	if err := r.client.ZRemRangeByScore(ctx, r.key(identifier), "-inf", cutoff).Err(); err != nil {
		return fmt.Errorf("trim attempts: %w", err)
	}
	return nil
}

// OldestAttempt returns the earliest attempt still inside the window, which
// determines when the sender may retry.
func (r *RateLimitRepository) OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	lo, hi, err := windowBounds(window, reference)
	if err != nil {
		return time.Time{}, false, err
	}
	entries, err := r.client.ZRangeByScoreWithScores(ctx, r.key(identifier), &red.ZRangeBy{Min: lo, Max: hi, Count: 1}).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("oldest attempt: %w", err)
	}
	if len(entries) == 0 {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(int64(entries[0].Score)), true, nil
}

func windowBounds(window time.Duration, reference time.Time) (string, string, error) {
	if window <= 0 {
		return "", "", errNonPositiveWindow
	}
	lo := "(" + strconv.FormatInt(reference.Add(-window).UnixMilli(), 10)
	hi := strconv.FormatInt(reference.UnixMilli(), 10)
	return lo, hi, nil
}

func (r *RateLimitRepository) key(identifier string) string {
	if r.cfg.KeyPrefix == "" {
		return identifier
	}
	return r.cfg.KeyPrefix + ":" + identifier
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
