package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
)

const (
	defaultIdleWindow    = 30 * time.Minute
	defaultSweepInterval = time.Minute
)

// SessionSweeper expires sessions that have been idle for the configured
// window. Sessions with a turn in flight are skipped and retried next pass.
type SessionSweeper struct {
	sessions port.SessionStore
	locks    *KeyedMutex
	leases   port.SessionLease
	idle     time.Duration
	interval time.Duration
	events   port.EventPublisher
	metrics  port.RegistrationMetrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionSweeper constructs a sweeper sharing locks with the controller.
func NewSessionSweeper(sessions port.SessionStore, locks *KeyedMutex, idle, interval time.Duration, events port.EventPublisher, metrics port.RegistrationMetrics, logger *zap.Logger) *SessionSweeper {
	if locks == nil {
		locks = NewKeyedMutex()
	}
	if idle <= 0 {
		idle = defaultIdleWindow
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if events == nil {
		events = noopPublisher{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionSweeper{
		sessions: sessions,
		locks:    locks,
		idle:     idle,
		interval: interval,
		events:   events,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the sweeper clock, mainly for tests.
func (s *SessionSweeper) WithClock(now func() time.Time) *SessionSweeper {
	if now != nil {
		s.now = now
	}
	return s
}

// WithLeases makes the sweeper also claim the cross-process session lease,
// so sessions mid-turn in another process are skipped too.
func (s *SessionSweeper) WithLeases(leases port.SessionLease) *SessionSweeper {
	s.leases = leases
	return s
}

func (s *SessionSweeper) claim(ctx context.Context) port.ClaimFunc {
	return func(key string) (func(), bool) {
		release, ok := s.locks.TryLock(key)
		if !ok || s.leases == nil {
			return release, ok
		}
		releaseLease, ok, err := s.leases.TryAcquire(ctx, key)
		if err != nil {
			s.logger.Warn("failed to claim session lease, skipping", zap.Error(err))
		}
		if err != nil || !ok {
			release()
			return nil, false
		}
		return func() {
			releaseLease()
			release()
		}, true
	}
}

// SweepOnce expires every idle, unlocked session and returns how many were closed.
func (s *SessionSweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now()
	expired, err := s.sessions.SweepExpired(ctx, s.idle, now, s.claim(ctx))
	if err != nil {
		return 0, fmt.Errorf("%w: sweep sessions: %w", ErrStorageUnavailable, err)
	}
	if len(expired) == 0 {
		return 0, nil
	}
	s.metrics.IncSessionsClosed(string(domain.SessionStatusExpired), len(expired))
	for _, session := range expired {
		event := domain.RegistrationClosedEvent{
			Channel:    session.Channel,
			Status:     domain.SessionStatusExpired,
			Duration:   now.Sub(session.CreatedAt),
			OccurredAt: now,
		}
		if err := s.events.PublishRegistrationClosed(ctx, event); err != nil {
			s.logger.Warn("failed to publish registration closed event", zap.Error(err))
		}
	}
	s.logger.Info("expired idle registration sessions", zap.Int("count", len(expired)))
	return len(expired), nil
}

// Run sweeps on every tick until ctx is cancelled.
func (s *SessionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("session sweeper started", zap.Duration("interval", s.interval), zap.Duration("idle", s.idle))
	for {
		select {
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("session sweep failed", zap.Error(err))
			}
		case <-ctx.Done():
			s.logger.Info("session sweeper shutting down", zap.Error(ctx.Err()))
			return
		}
	}
}
