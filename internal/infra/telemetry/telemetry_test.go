package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistrationMetricsRecords(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewRegistrationMetrics(RegistrationMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("NewRegistrationMetrics returned error: %v", err)
	}

	m.ObserveTurn("web", "progress", 120*time.Millisecond)
	m.ObserveTurn("web", "progress", 80*time.Millisecond)
	m.IncExtraction("model", "timeout")
	m.IncValidationRejected("phone_number", "missing_country_code")
	m.IncDuplicateMatch("confirmed")
	m.IncAccountCreated("messaging")
	m.IncSessionsClosed("expired", 3)
	m.IncSessionsClosed("expired", 0)
	m.IncWebhookReplay()

	if got := testutil.ToFloat64(m.Turns.WithLabelValues("web", "progress")); got != 2 {
		t.Fatalf("expected 2 turns, got %f", got)
	}
	if samples := testutil.CollectAndCount(m.TurnDuration); samples == 0 {
		t.Fatalf("expected turn duration samples")
	}
	if got := testutil.ToFloat64(m.Extractions.WithLabelValues("model", "timeout")); got != 1 {
		t.Fatalf("expected 1 timeout, got %f", got)
	}
	if got := testutil.ToFloat64(m.Rejections.WithLabelValues("phone_number", "missing_country_code")); got != 1 {
		t.Fatalf("expected 1 rejection, got %f", got)
	}
	if got := testutil.ToFloat64(m.DuplicateChecks.WithLabelValues("confirmed")); got != 1 {
		t.Fatalf("expected 1 duplicate match, got %f", got)
	}
	if got := testutil.ToFloat64(m.AccountsCreated.WithLabelValues("messaging")); got != 1 {
		t.Fatalf("expected 1 account, got %f", got)
	}
	if got := testutil.ToFloat64(m.SessionsClosed.WithLabelValues("expired")); got != 3 {
		t.Fatalf("expected 3 closed sessions, got %f", got)
	}
	if got := testutil.ToFloat64(m.WebhookReplays); got != 1 {
		t.Fatalf("expected 1 replay, got %f", got)
	}
}

func TestRegistrationMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first, err := NewRegistrationMetrics(RegistrationMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	second, err := NewRegistrationMetrics(RegistrationMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("second registration failed: %v", err)
	}

	second.IncAccountCreated("web")
	if got := testutil.ToFloat64(first.AccountsCreated.WithLabelValues("web")); got != 1 {
		t.Fatalf("expected shared collector, got %f", got)
	}
}
