package interceptors

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc/filters"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/stats"
)

// TracingOptions customises the tracing stats handler behaviour.
type TracingOptions struct {
	TracerProvider trace.TracerProvider
	Propagators    propagation.TextMapPropagator
	// TraceHealthChecks includes grpc.health.v1 checks in traces.
	TraceHealthChecks bool
	Additional        []otelgrpc.Option
}

// Tracing wraps the OpenTelemetry stats handler for gRPC traffic.
type Tracing struct {
	handler stats.Handler
}

// NewTracing builds the server stats handler with the supplied options.
func NewTracing(opts TracingOptions) *Tracing {
	options := make([]otelgrpc.Option, 0, len(opts.Additional)+3)
	if opts.TracerProvider != nil {
		options = append(options, otelgrpc.WithTracerProvider(opts.TracerProvider))
	}
	if opts.Propagators != nil {
		options = append(options, otelgrpc.WithPropagators(opts.Propagators))
	}
	if !opts.TraceHealthChecks {
		options = append(options, otelgrpc.WithFilter(filters.Not(filters.HealthCheck())))
	}
	options = append(options, opts.Additional...)

	return &Tracing{handler: otelgrpc.NewServerHandler(options...)}
}

// Handler returns the underlying stats handler.
func (t *Tracing) Handler() stats.Handler {
	if t == nil {
		return nil
	}
	return t.handler
}

// ServerOption attaches the handler to a gRPC server. A nil receiver
// yields an empty option.
func (t *Tracing) ServerOption() grpc.ServerOption {
	if t == nil || t.handler == nil {
		return grpc.EmptyServerOption{}
	}
	return grpc.StatsHandler(t.handler)
}
