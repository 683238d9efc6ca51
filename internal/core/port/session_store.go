package port

import (
	"context"
	"time"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
)

// ClaimFunc tries to take a session's turn lock without blocking.
// It returns a release func and true on success, or false when a turn is in flight.
type ClaimFunc func(sessionKey string) (release func(), ok bool)

// SessionStore persists registration sessions keyed by session key.
type SessionStore interface {
	// GetOrCreate returns the stored session or atomically creates a fresh one.
	// Concurrent first access for one key yields a single session.
	GetOrCreate(ctx context.Context, key string, channel domain.Channel, locale string) (*domain.RegistrationSession, error)
	Save(ctx context.Context, session *domain.RegistrationSession) error
	Delete(ctx context.Context, key string) error
	// SweepExpired moves active sessions idle for at least idle to expired,
	// skipping any key claim refuses. It returns the expired sessions.
	SweepExpired(ctx context.Context, idle time.Duration, now time.Time, claim ClaimFunc) ([]domain.RegistrationSession, error)
	Ping(ctx context.Context) error
}

// SessionLease is a turn lock on a session key shared by every process that
// touches the session store: API replicas and the operator sweep.
type SessionLease interface {
	// Acquire blocks until the lease for key is held or ctx is done.
	Acquire(ctx context.Context, key string) (release func(), err error)
	// TryAcquire takes the lease only if nobody holds it.
	TryAcquire(ctx context.Context, key string) (release func(), ok bool, err error)
}
