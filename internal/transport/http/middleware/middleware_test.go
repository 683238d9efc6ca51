package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestIDPropagatesHeaderIntoContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var seen string
	router := gin.New()
	router.Use(RequestID(), Logger(zaptest.NewLogger(t)))
	router.GET("/", func(c *gin.Context) {
		seen = requestIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if seen != "req-1" || rr.Header().Get(requestIDHeader) != "req-1" {
		t.Fatalf("request id not propagated: ctx=%q header=%q", seen, rr.Header().Get(requestIDHeader))
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "bad id<script>")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if got := rr.Header().Get(requestIDHeader); got == "" || strings.Contains(got, "<") {
		t.Fatalf("expected malformed request id replaced, got %q", got)
	}
}

func TestEnrichContextContinuesPropagatedTrace(t *testing.T) {
	gin.SetMode(gin.TestMode)
	previous := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(previous) })

	var traceID string
	router := gin.New()
	router.Use(EnrichContext())
	router.GET("/", func(c *gin.Context) {
		traceID = GetTraceID(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	req.Header.Set(TraceIDHeader, "ignored")
	router.ServeHTTP(httptest.NewRecorder(), req)

	if traceID != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("expected propagated trace id, got %q", traceID)
	}
}

func TestLoggerMasksSessionKeyAndQuietsHealthChecks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)

	router := gin.New()
	router.Use(Logger(zap.New(core)))
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.POST("/message", func(c *gin.Context) {
		SetSessionKey(c, "+38641348050")
		c.Status(http.StatusOK)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/message", nil))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected two access log entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel {
		t.Fatalf("expected health check logged at debug, got %v", entries[0].Level)
	}
	fields := entries[1].ContextMap()
	if fields["session"] != "+386***8050" || fields["route"] != "/message" {
		t.Fatalf("unexpected access log fields %v", fields)
	}
}

func TestEnrichContextSetsTraceID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var traceID string
	router := gin.New()
	router.Use(EnrichContext())
	router.GET("/", func(c *gin.Context) {
		traceID = GetTraceID(c)
		c.Status(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if traceID == "" || rr.Header().Get(TraceIDHeader) != traceID {
		t.Fatalf("trace id not set: %q / %q", traceID, rr.Header().Get(TraceIDHeader))
	}
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(CORS([]string{"https://farm.example"}))
	router.POST("/registration/message", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/registration/message", nil)
	req.Header.Set("Origin", "https://farm.example")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "https://farm.example" {
		t.Fatalf("origin not allowed: %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}

	if !strings.Contains(rr.Header().Get("Access-Control-Allow-Headers"), "Accept-Language") {
		t.Fatalf("expected Accept-Language allowed, got %q", rr.Header().Get("Access-Control-Allow-Headers"))
	}

	req = httptest.NewRequest(http.MethodPost, "/registration/message", nil)
	req.Header.Set("Origin", "https://other.example")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected origin allowed")
	}
	if rr.Header().Get("Vary") != "Origin" {
		t.Fatalf("expected Vary: Origin")
	}
}

func TestCORSWildcardOmitsCredentials(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(CORS([]string{"*"}))
	router.POST("/registration/message", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/registration/message", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Header().Get("Access-Control-Allow-Origin") != "*" || rr.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Fatalf("unexpected wildcard headers %v", rr.Header())
	}
}
