package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/config"
)

func localConfig() *config.AppConfig {
	return &config.AppConfig{
		App:      config.AppSettings{Name: "farmer-onboarding", Env: "test", Host: "127.0.0.1", Port: 0},
		SQLite:   config.SQLiteSettings{Path: ":memory:", BusyTimeout: time.Second},
		Identity: config.IdentitySettings{Backend: "sqlite", Timeout: time.Second},
		Sessions: config.SessionSettings{Backend: "memory", TerminalRetention: time.Hour},
		Argon2:   config.Argon2Settings{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		LLM:      config.LLMSettings{Provider: "none", Timeout: time.Second},
		Registration: config.RegistrationSettings{
			IdleWindow:       30 * time.Minute,
			SweepInterval:    time.Minute,
			FallbackLocale:   "en",
			SupportedLocales: []string{"en", "sl", "es"},
			FuzzyThreshold:   0.6,
			FuzzyLimit:       3,
			WebhookDedupTTL:  time.Hour,
			WebhookProvider:  "twilio",
		},
	}
}

func TestNewServesRegistrationWithLocalBackends(t *testing.T) {
	application, err := New(context.Background(), localConfig(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	t.Cleanup(func() { application.cleanup(context.Background()) })

	rr := httptest.NewRecorder()
	application.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected ready, got %d: %s", rr.Code, rr.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/registration/message", bytes.NewBufferString(`{"text":"Peter"}`))
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	application.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "last name") {
		t.Fatalf("unexpected turn response %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	application, err := New(context.Background(), localConfig(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("new application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
}

func TestOpenBackendsRejectsUnknownSessionBackend(t *testing.T) {
	cfg := localConfig()
	cfg.Sessions.Backend = "etcd"
	if _, err := OpenBackends(context.Background(), cfg, zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected error for unknown session backend")
	}
}

func TestNewControllerRejectsBadLocales(t *testing.T) {
	cfg := localConfig()
	cfg.Registration.SupportedLocales = []string{"not a locale!"}
	dir, err := OpenDirectory(context.Background(), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("open directory: %v", err)
	}
	t.Cleanup(func() { _ = dir.Close() })

	if _, err := NewController(context.Background(), cfg, ControllerDeps{Farmers: dir.Repository}); err == nil {
		t.Fatalf("expected language detector error")
	}
}
