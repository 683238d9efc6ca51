package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/security"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/repository"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/repository/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeAccounts struct {
	mu          sync.Mutex
	byPhone     map[string]domain.FarmerAccount
	fuzzy       []domain.FarmerCandidate
	findErr     error
	fuzzyErr    error
	createErr   error
	blockCreate bool
	createCalls int
	fuzzyCalls  int
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byPhone: make(map[string]domain.FarmerAccount)}
}

func (f *fakeAccounts) FindByPhone(_ context.Context, phone string) (*domain.FarmerAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	account, ok := f.byPhone[phone]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &account, nil
}

func (f *fakeAccounts) FindFuzzy(context.Context, string, string, int) ([]domain.FarmerCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fuzzyCalls++
	return f.fuzzy, f.fuzzyErr
}

func (f *fakeAccounts) Create(ctx context.Context, account domain.FarmerAccount) (*domain.FarmerAccount, error) {
	f.mu.Lock()
	block := f.blockCreate
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, taken := f.byPhone[account.PhoneNumber]; taken {
		return nil, repository.ErrDuplicate
	}
	f.byPhone[account.PhoneNumber] = account
	return &account, nil
}

func (f *fakeAccounts) Ping(context.Context) error { return nil }

func (f *fakeAccounts) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byPhone)
}

type recordingPublisher struct {
	mu         sync.Mutex
	registered []domain.FarmerRegisteredEvent
	closed     []domain.RegistrationClosedEvent
}

func (p *recordingPublisher) PublishFarmerRegistered(_ context.Context, event domain.FarmerRegisteredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = append(p.registered, event)
	return nil
}

func (p *recordingPublisher) PublishRegistrationClosed(_ context.Context, event domain.RegistrationClosedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = append(p.closed, event)
	return nil
}

func (p *recordingPublisher) closedStatuses() []domain.SessionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.SessionStatus, 0, len(p.closed))
	for _, e := range p.closed {
		out = append(out, e.Status)
	}
	return out
}

// flakyStore wraps the memory store and fails on demand.
type flakyStore struct {
	*memory.SessionStore
	getErr  error
	saveErr error
}

func (s *flakyStore) GetOrCreate(ctx context.Context, key string, channel domain.Channel, locale string) (*domain.RegistrationSession, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.SessionStore.GetOrCreate(ctx, key, channel, locale)
}

func (s *flakyStore) Save(ctx context.Context, session *domain.RegistrationSession) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.SessionStore.Save(ctx, session)
}

// scriptedModel is a language model double.
type scriptedModel struct {
	mu       sync.Mutex
	result   func(req domain.ExtractionRequest) *domain.ExtractionResult
	err      error
	delay    time.Duration
	requests []domain.ExtractionRequest

	inflight    atomic.Int32
	maxInflight atomic.Int32
	barrier     int32
}

func (m *scriptedModel) Name() string { return "scripted" }

func (m *scriptedModel) Extract(ctx context.Context, req domain.ExtractionRequest) (*domain.ExtractionResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	n := m.inflight.Add(1)
	defer m.inflight.Add(-1)
	for {
		seen := m.maxInflight.Load()
		if n <= seen || m.maxInflight.CompareAndSwap(seen, n) {
			break
		}
	}
	if m.barrier > 0 {
		deadline := time.Now().Add(500 * time.Millisecond)
		for m.inflight.Load() < m.barrier && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return &domain.ExtractionResult{}, nil
	}
	return m.result(req), nil
}

func (m *scriptedModel) calls() []domain.ExtractionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ExtractionRequest(nil), m.requests...)
}

// fakeLeases is a lease table shared the way Redis would share it
// between processes.
type fakeLeases struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired []string
}

func newFakeLeases() *fakeLeases {
	return &fakeLeases{held: make(map[string]bool)}
}

func (l *fakeLeases) TryAcquire(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	l.acquired = append(l.acquired, key)
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, true, nil
}

func (l *fakeLeases) Acquire(ctx context.Context, key string) (func(), error) {
	for {
		release, ok, _ := l.TryAcquire(ctx, key)
		if ok {
			return release, nil
		}
		select {
		case <-time.After(time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *fakeLeases) isHeld(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[key]
}

type harness struct {
	t          *testing.T
	controller *ConversationController
	store      *flakyStore
	accounts   *fakeAccounts
	events     *recordingPublisher
	hasher     *security.Argon2Hasher
	clock      *fakeClock
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	model           port.LanguageModel
	modelTimeout    time.Duration
	threshold       int
	identityTimeout time.Duration
	leases          port.SessionLease
	tracer          trace.Tracer
}

func withModel(model port.LanguageModel, timeout time.Duration) harnessOption {
	return func(c *harnessConfig) {
		c.model = model
		c.modelTimeout = timeout
	}
}

func withDigressionThreshold(n int) harnessOption {
	return func(c *harnessConfig) { c.threshold = n }
}

func withIdentityTimeout(d time.Duration) harnessOption {
	return func(c *harnessConfig) { c.identityTimeout = d }
}

func withLeases(leases port.SessionLease) harnessOption {
	return func(c *harnessConfig) { c.leases = leases }
}

func withTracer(tracer trace.Tracer) harnessOption {
	return func(c *harnessConfig) { c.tracer = tracer }
}

func newTestHasher(t *testing.T) *security.Argon2Hasher {
	t.Helper()
	h, err := security.NewArgon2Hasher(security.Argon2Config{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}
	return h
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{modelTimeout: time.Second, identityTimeout: time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	clock := newFakeClock()
	store := &flakyStore{SessionStore: memory.NewSessionStore(0)}
	accounts := newFakeAccounts()
	events := &recordingPublisher{}
	hasher := newTestHasher(t)

	detector, err := NewLanguageDetector([]string{"en", "sl", "es"}, "en")
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	completion := NewCompletionHandler(accounts, events, cfg.identityTimeout, nil, nil).WithClock(clock.Now)
	controller, err := NewConversationController(ConversationDeps{
		Sessions:   store,
		Extractor:  NewExtractionAdapter(cfg.model, nil, cfg.modelTimeout, nil, nil),
		Detector:   detector,
		Duplicates: NewDuplicateDetector(accounts, 0.6, 3, cfg.identityTimeout, nil, nil),
		Completion: completion,
		Hasher:     hasher,
		Leases:     cfg.leases,
		Events:     events,
		Tracer:     cfg.tracer,
	}, ConversationConfig{DigressionThreshold: cfg.threshold})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	controller.WithClock(clock.Now)

	return &harness{
		t:          t,
		controller: controller,
		store:      store,
		accounts:   accounts,
		events:     events,
		hasher:     hasher,
		clock:      clock,
	}
}

func (h *harness) send(key, text string) *domain.TurnReply {
	h.t.Helper()
	return h.sendOn(domain.ChannelWeb, key, text)
}

func (h *harness) sendOn(channel domain.Channel, key, text string) *domain.TurnReply {
	h.t.Helper()
	reply, err := h.controller.HandleTurn(context.Background(), domain.InboundMessage{
		SessionKey: key,
		Channel:    channel,
		Text:       text,
	})
	if err != nil {
		h.t.Fatalf("HandleTurn(%q) on %s returned error: %v", text, channel, err)
	}
	return reply
}

// session loads the web session stored for key.
func (h *harness) session(key string) *domain.RegistrationSession {
	h.t.Helper()
	return h.sessionOn(domain.ChannelWeb, key)
}

func (h *harness) sessionOn(channel domain.Channel, key string) *domain.RegistrationSession {
	h.t.Helper()
	session, err := h.store.SessionStore.GetOrCreate(context.Background(), domain.StoreKey(channel, key), channel, "en")
	if err != nil {
		h.t.Fatalf("load session: %v", err)
	}
	return session
}
