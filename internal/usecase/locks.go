package usecase

import (
	"context"
	"sync"
)

type keyLock struct {
	sem  chan struct{}
	refs int
}

// KeyedMutex serializes work per session key. Entries are reference counted
// and removed once nobody holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// NewKeyedMutex returns an empty lock table.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

func (m *KeyedMutex) acquire(key string) *keyLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	return l
}

func (m *KeyedMutex) drop(key string, l *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

// Lock blocks until key is free or ctx is done.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	l := m.acquire(key)
	select {
	case l.sem <- struct{}{}:
		return m.releaser(key, l), nil
	case <-ctx.Done():
		m.drop(key, l)
		return nil, ctx.Err()
	}
}

// TryLock takes key only if it is free.
func (m *KeyedMutex) TryLock(key string) (func(), bool) {
	l := m.acquire(key)
	select {
	case l.sem <- struct{}{}:
		return m.releaser(key, l), true
	default:
		m.drop(key, l)
		return nil, false
	}
}

func (m *KeyedMutex) releaser(key string, l *keyLock) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			m.drop(key, l)
		})
	}
}

// Len reports how many keys are currently tracked.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
