package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/repository"
)

const defaultSessionPrefix = "onboarding:session"

// SessionStoreConfig tunes key layout and expiry backstops.
type SessionStoreConfig struct {
	KeyPrefix string
	// ActiveTTL bounds how long an untouched active record may live if sweeps stop.
	ActiveTTL time.Duration
	// TerminalRetention is how long anonymized terminal records are kept.
	TerminalRetention time.Duration
}

// SessionStore keeps registration sessions as JSON documents plus a
// sorted-set activity index of active keys scored by last activity.
type SessionStore struct {
	client *red.Client
	cfg    SessionStoreConfig
}

// NewSessionStore constructs a Redis-backed session store.
func NewSessionStore(client *red.Client, cfg SessionStoreConfig) *SessionStore {
	cfg.KeyPrefix = strings.TrimSpace(cfg.KeyPrefix)
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultSessionPrefix
	}
	if cfg.ActiveTTL <= 0 {
		cfg.ActiveTTL = 24 * time.Hour
	}
	if cfg.TerminalRetention <= 0 {
		cfg.TerminalRetention = 24 * time.Hour
	}
	return &SessionStore{client: client, cfg: cfg}
}

// GetOrCreate loads the session or creates it with SETNX so concurrent
// first turns converge on one record.
func (s *SessionStore) GetOrCreate(ctx context.Context, key string, channel domain.Channel, locale string) (*domain.RegistrationSession, error) {
	if key == "" {
		return nil, fmt.Errorf("session key is required")
	}

	session, err := s.get(ctx, key)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	fresh := domain.NewRegistrationSession(key, channel, locale, time.Now().UTC())
	payload, err := json.Marshal(fresh)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}

	created, err := s.client.SetNX(ctx, s.key(key), payload, s.cfg.ActiveTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx session: %w: %w", repository.ErrUnavailable, err)
	}
	if !created {
		return s.get(ctx, key)
	}

	if err := s.client.ZAdd(ctx, s.indexKey(), red.Z{
		Score:  float64(fresh.LastActivityAt.UnixNano()),
		Member: key,
	}).Err(); err != nil {
		return nil, fmt.Errorf("redis zadd activity: %w: %w", repository.ErrUnavailable, err)
	}

	return fresh, nil
}

// Save writes the session and keeps the activity index in step with its status.
func (s *SessionStore) Save(ctx context.Context, session *domain.RegistrationSession) error {
	if session == nil || session.Key == "" {
		return fmt.Errorf("session with key is required")
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	ttl := s.cfg.ActiveTTL
	if session.Terminal() {
		ttl = s.cfg.TerminalRetention
	}

	_, err = s.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.Set(ctx, s.key(session.Key), payload, ttl)
		if session.Terminal() {
			pipe.ZRem(ctx, s.indexKey(), session.Key)
		} else {
			pipe.ZAdd(ctx, s.indexKey(), red.Z{
				Score:  float64(session.LastActivityAt.UnixNano()),
				Member: session.Key,
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save session: %w: %w", repository.ErrUnavailable, err)
	}
	return nil
}

// Delete removes the session and its index entry.
func (s *SessionStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.Del(ctx, s.key(key))
		pipe.ZRem(ctx, s.indexKey(), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete session: %w: %w", repository.ErrUnavailable, err)
	}
	return nil
}

// SweepExpired expires active sessions whose last activity is older than idle.
// Keys the claim func refuses are mid-turn and left alone.
func (s *SessionStore) SweepExpired(ctx context.Context, idle time.Duration, now time.Time, claim port.ClaimFunc) ([]domain.RegistrationSession, error) {
	if idle <= 0 {
		return nil, errors.New("idle window must be positive")
	}

	cutoff := fmt.Sprintf("%d", now.Add(-idle).UnixNano())
	keys, err := s.client.ZRangeByScore(ctx, s.indexKey(), &red.ZRangeBy{Min: "-inf", Max: cutoff}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrangebyscore activity: %w: %w", repository.ErrUnavailable, err)
	}

	var expired []domain.RegistrationSession
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return expired, err
		}

		release, ok := claim(key)
		if !ok {
			continue
		}
		session, err := s.expireOne(ctx, key, idle, now)
		release()
		if err != nil {
			return expired, err
		}
		if session != nil {
			expired = append(expired, *session)
		}
	}
	return expired, nil
}

func (s *SessionStore) expireOne(ctx context.Context, key string, idle time.Duration, now time.Time) (*domain.RegistrationSession, error) {
	session, err := s.get(ctx, key)
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrCorrupt) {
		return nil, s.client.ZRem(ctx, s.indexKey(), key).Err()
	}
	if err != nil {
		return nil, err
	}

	if session.Terminal() {
		return nil, s.client.ZRem(ctx, s.indexKey(), key).Err()
	}
	if !session.IdleSince(now, idle) {
		// Touched after the index read; refresh its score.
		return nil, s.client.ZAdd(ctx, s.indexKey(), red.Z{
			Score:  float64(session.LastActivityAt.UnixNano()),
			Member: key,
		}).Err()
	}

	closed := session.Clone()
	closed.Close(domain.SessionStatusExpired, now)
	closed.Anonymize()
	if err := s.Save(ctx, closed); err != nil {
		return nil, err
	}
	return closed, nil
}

// Ping checks Redis connectivity.
func (s *SessionStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", repository.ErrUnavailable, err)
	}
	return nil
}

func (s *SessionStore) get(ctx context.Context, key string) (*domain.RegistrationSession, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get session: %w: %w", repository.ErrUnavailable, err)
	}

	var session domain.RegistrationSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w: %w", key, repository.ErrCorrupt, err)
	}
	if session.Collected == nil {
		session.Collected = make(map[domain.Field]string)
	}
	if session.AttemptCounts == nil {
		session.AttemptCounts = make(map[domain.Field]int)
	}
	return &session, nil
}

func (s *SessionStore) key(sessionKey string) string {
	return fmt.Sprintf("%s:s:%s", s.cfg.KeyPrefix, sessionKey)
}

func (s *SessionStore) indexKey() string {
	return s.cfg.KeyPrefix + ":activity"
}

var _ port.SessionStore = (*SessionStore)(nil)
