package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
)

// RegistrationMetricsOptions configures the onboarding collectors.
type RegistrationMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
	Buckets    []float64
}

// RegistrationMetrics implements port.RegistrationMetrics with Prometheus.
type RegistrationMetrics struct {
	Turns           *prometheus.CounterVec
	TurnDuration    *prometheus.HistogramVec
	Extractions     *prometheus.CounterVec
	Rejections      *prometheus.CounterVec
	DuplicateChecks *prometheus.CounterVec
	AccountsCreated *prometheus.CounterVec
	SessionsClosed  *prometheus.CounterVec
	WebhookReplays  prometheus.Counter
}

// NewRegistrationMetrics constructs and registers the collectors. Collectors
// that are already registered are reused.
func NewRegistrationMetrics(opts RegistrationMetricsOptions) (*RegistrationMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "onboarding"
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16}
	}

	m := &RegistrationMetrics{}
	var err error

	if m.Turns, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "registration",
		Name:      "turns_total",
		Help:      "Conversation turns partitioned by channel and outcome.",
	}, []string{"channel", "outcome"})); err != nil {
		return nil, err
	}
	if m.TurnDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "registration",
		Name:      "turn_duration_seconds",
		Help:      "Latency of a conversation turn including extraction.",
		Buckets:   buckets,
	}, []string{"channel"})); err != nil {
		return nil, err
	}
	if m.Extractions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "extraction",
		Name:      "attempts_total",
		Help:      "Extraction attempts partitioned by strategy and outcome.",
	}, []string{"strategy", "outcome"})); err != nil {
		return nil, err
	}
	if m.Rejections, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "validation",
		Name:      "rejections_total",
		Help:      "Rejected field values partitioned by field and reason code.",
	}, []string{"field", "code"})); err != nil {
		return nil, err
	}
	if m.DuplicateChecks, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "duplicates",
		Name:      "matches_total",
		Help:      "Duplicate lookups partitioned by match kind.",
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if m.AccountsCreated, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "registration",
		Name:      "accounts_created_total",
		Help:      "Farmer accounts created partitioned by channel.",
	}, []string{"channel"})); err != nil {
		return nil, err
	}
	if m.SessionsClosed, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "registration",
		Name:      "sessions_closed_total",
		Help:      "Sessions that reached a terminal status.",
	}, []string{"status"})); err != nil {
		return nil, err
	}
	if m.WebhookReplays, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "replays_total",
		Help:      "Redelivered webhook messages answered from the dedup cache.",
	})); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	if err := reg.Register(collector); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return collector, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return collector, nil
}

func (m *RegistrationMetrics) ObserveTurn(channel, outcome string, elapsed time.Duration) {
	m.Turns.WithLabelValues(channel, outcome).Inc()
	m.TurnDuration.WithLabelValues(channel).Observe(elapsed.Seconds())
}

func (m *RegistrationMetrics) IncExtraction(strategy, outcome string) {
	m.Extractions.WithLabelValues(strategy, outcome).Inc()
}

func (m *RegistrationMetrics) IncValidationRejected(field, code string) {
	m.Rejections.WithLabelValues(field, code).Inc()
}

func (m *RegistrationMetrics) IncDuplicateMatch(kind string) {
	m.DuplicateChecks.WithLabelValues(kind).Inc()
}

func (m *RegistrationMetrics) IncAccountCreated(channel string) {
	m.AccountsCreated.WithLabelValues(channel).Inc()
}

func (m *RegistrationMetrics) IncSessionsClosed(status string, n int) {
	if n <= 0 {
		return
	}
	m.SessionsClosed.WithLabelValues(status).Add(float64(n))
}

func (m *RegistrationMetrics) IncWebhookReplay() {
	m.WebhookReplays.Inc()
}

var _ port.RegistrationMetrics = (*RegistrationMetrics)(nil)
