package interceptors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// GRPCMetricsOptions controls construction of gRPC metrics collectors.
type GRPCMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
	Subsystem  string
	Buckets    []float64
}

// GRPCMetrics wraps Prometheus collectors for the ops gRPC server.
type GRPCMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
}

// NewGRPCMetrics constructs collectors and registers them with the supplied
// registerer, reusing collectors that are already registered.
func NewGRPCMetrics(opts GRPCMetricsOptions) (*GRPCMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "onboarding"
	}
	subsystem := opts.Subsystem
	if subsystem == "" {
		subsystem = "grpc"
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	m := &GRPCMetrics{}
	var err error
	if m.requests, err = registerCollector(reg, "requests", prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "requests_total",
		Help:      "gRPC requests partitioned by service, method and status code.",
	}, []string{"service", "method", "code"})); err != nil {
		return nil, err
	}
	if m.duration, err = registerCollector(reg, "duration", prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_duration_seconds",
		Help:      "gRPC request latencies in seconds partitioned by service, method and status code.",
		Buckets:   buckets,
	}, []string{"service", "method", "code"})); err != nil {
		return nil, err
	}
	if m.inFlight, err = registerCollector(reg, "in-flight", prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "in_flight_requests",
		Help:      "Current number of in-flight gRPC requests partitioned by service.",
	}, []string{"service"})); err != nil {
		return nil, err
	}
	return m, nil
}

func registerCollector[T prometheus.Collector](reg prometheus.Registerer, name string, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		existing, ok := already.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("existing gRPC %s collector has wrong type %T", name, already.ExistingCollector)
		}
		return existing, nil
	}
	return collector, fmt.Errorf("register gRPC %s collector: %w", name, err)
}

// UnaryServerInterceptor returns a gRPC unary interceptor that records metrics.
func (m *GRPCMetrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	if m == nil {
		return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			return handler(ctx, req)
		}
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		done := m.begin(info.FullMethod)
		resp, err := handler(ctx, req)
		done(err)
		return resp, err
	}
}

// StreamServerInterceptor records metrics for streaming calls such as
// reflection and health Watch.
func (m *GRPCMetrics) StreamServerInterceptor() grpc.StreamServerInterceptor {
	if m == nil {
		return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
			return handler(srv, ss)
		}
	}
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		done := m.begin(info.FullMethod)
		err := handler(srv, ss)
		done(err)
		return err
	}
}

func (m *GRPCMetrics) begin(fullMethod string) func(error) {
	service, method := splitFullMethod(fullMethod)
	start := time.Now()
	gauge := m.inFlight.WithLabelValues(service)
	gauge.Inc()

	return func(err error) {
		gauge.Dec()
		labels := prometheus.Labels{
			"service": service,
			"method":  method,
			"code":    status.Code(err).String(),
		}
		m.requests.With(labels).Inc()
		m.duration.With(labels).Observe(time.Since(start).Seconds())
	}
}

func splitFullMethod(full string) (string, string) {
	full = strings.TrimPrefix(full, "/")
	if full == "" {
		return "unknown", "unknown"
	}
	service, method, ok := strings.Cut(full, "/")
	if !ok || strings.Contains(method, "/") {
		return full, "unknown"
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}
