package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
)

// SessionStore is an in-process session store for local mode and tests.
// It stores clones so callers never share mutable state with the map.
type SessionStore struct {
	mu                sync.RWMutex
	sessions          map[string]*domain.RegistrationSession
	terminalRetention time.Duration
	now               func() time.Time
}

// NewSessionStore creates an empty store. Terminal sessions older than
// retention are dropped during sweeps; zero keeps them forever.
func NewSessionStore(retention time.Duration) *SessionStore {
	return &SessionStore{
		sessions:          make(map[string]*domain.RegistrationSession),
		terminalRetention: retention,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreate returns a copy of the stored session, creating it under the write lock.
func (s *SessionStore) GetOrCreate(_ context.Context, key string, channel domain.Channel, locale string) (*domain.RegistrationSession, error) {
	if key == "" {
		return nil, errors.New("session key is required")
	}

	s.mu.RLock()
	existing, ok := s.sessions[key]
	if ok {
		clone := existing.Clone()
		s.mu.RUnlock()
		return clone, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[key]; ok {
		return existing.Clone(), nil
	}
	fresh := domain.NewRegistrationSession(key, channel, locale, s.now())
	s.sessions[key] = fresh
	return fresh.Clone(), nil
}

// Save replaces the stored session.
func (s *SessionStore) Save(_ context.Context, session *domain.RegistrationSession) error {
	if session == nil || session.Key == "" {
		return errors.New("session with key is required")
	}
	s.mu.Lock()
	s.sessions[session.Key] = session.Clone()
	s.mu.Unlock()
	return nil
}

// Delete forgets the session.
func (s *SessionStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.sessions, key)
	s.mu.Unlock()
	return nil
}

// SweepExpired expires idle active sessions that claim accepts and drops
// terminal records past retention.
func (s *SessionStore) SweepExpired(ctx context.Context, idle time.Duration, now time.Time, claim port.ClaimFunc) ([]domain.RegistrationSession, error) {
	if idle <= 0 {
		return nil, errors.New("idle window must be positive")
	}

	s.mu.RLock()
	keys := make([]string, 0, len(s.sessions))
	for key, session := range s.sessions {
		if session.Status == domain.SessionStatusActive && session.IdleSince(now, idle) {
			keys = append(keys, key)
		}
	}
	s.mu.RUnlock()
	sort.Strings(keys)

	var expired []domain.RegistrationSession
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		release, ok := claim(key)
		if !ok {
			continue
		}

		s.mu.Lock()
		session, exists := s.sessions[key]
		if exists && session.Status == domain.SessionStatusActive && session.IdleSince(now, idle) {
			session.Close(domain.SessionStatusExpired, now)
			session.Anonymize()
			expired = append(expired, *session.Clone())
		}
		s.mu.Unlock()
		release()
	}

	s.purgeTerminal(now)
	return expired, nil
}

func (s *SessionStore) purgeTerminal(now time.Time) {
	if s.terminalRetention <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, session := range s.sessions {
		if session.ClosedAt != nil && now.Sub(*session.ClosedAt) >= s.terminalRetention {
			delete(s.sessions, key)
		}
	}
}

// Ping always succeeds.
func (s *SessionStore) Ping(context.Context) error { return nil }

// Len reports how many records are held.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

var _ port.SessionStore = (*SessionStore)(nil)
