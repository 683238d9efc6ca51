package interceptors

import (
	"context"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/stats"
	"google.golang.org/grpc/status"
)

func runRPC(h stats.Handler, method string, err error) {
	ctx := h.TagRPC(context.Background(), &stats.RPCTagInfo{FullMethodName: method})
	begin := time.Now()
	h.HandleRPC(ctx, &stats.Begin{BeginTime: begin})
	h.HandleRPC(ctx, &stats.End{BeginTime: begin, EndTime: time.Now(), Error: err})
}

func TestTracingRecordsServerSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracing := NewTracing(TracingOptions{TracerProvider: tp})

	runRPC(tracing.Handler(), "/grpc.reflection.v1.ServerReflection/ServerReflectionInfo", status.Error(codes.Unavailable, "down"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	if spans[0].Name() != "grpc.reflection.v1.ServerReflection/ServerReflectionInfo" {
		t.Fatalf("unexpected span name %q", spans[0].Name())
	}
	if spans[0].Status().Code.String() != "Error" {
		t.Fatalf("expected error status, got %v", spans[0].Status())
	}
}

func TestTracingSkipsHealthChecksByDefault(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	runRPC(NewTracing(TracingOptions{TracerProvider: tp}).Handler(), "/grpc.health.v1.Health/Check", nil)
	if got := len(recorder.Ended()); got != 0 {
		t.Fatalf("expected health checks to be skipped, got %d spans", got)
	}

	runRPC(NewTracing(TracingOptions{TracerProvider: tp, TraceHealthChecks: true}).Handler(), "/grpc.health.v1.Health/Check", nil)
	if got := len(recorder.Ended()); got != 1 {
		t.Fatalf("expected health check traced when enabled, got %d spans", got)
	}
}

func TestNilTracingYieldsEmptyOption(t *testing.T) {
	var tracing *Tracing
	if _, ok := tracing.ServerOption().(grpc.EmptyServerOption); !ok {
		t.Fatalf("expected empty server option for nil tracing")
	}
}
