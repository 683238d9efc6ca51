package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TraceIDHeader is the HTTP header name for trace ID
	TraceIDHeader = "X-Trace-ID"
	// TraceIDKey is the context key for trace ID
	TraceIDKey = "trace_id"
	// SessionKeyKey holds the conversation key once a handler resolved it.
	SessionKeyKey = "session_key"

	requestContextKey      = "request_context"
	maxCorrelationIDLength = 128
)

// RequestContext holds request-scoped information
type RequestContext struct {
	TraceID        string
	IP             string
	UserAgent      string
	AcceptLanguage string
}

// EnrichContext continues an incoming W3C trace when one is propagated and
// assigns a trace ID to every request. The propagated trace wins over
// X-Trace-ID, which wins over a generated id.
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		c.Request = c.Request.WithContext(ctx)

		var traceID string
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		} else if id := sanitizeCorrelationID(c.GetHeader(TraceIDHeader)); id != "" {
			traceID = id
		} else {
			traceID = uuid.NewString()
		}

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)
		c.Set(requestContextKey, &RequestContext{
			TraceID:        traceID,
			IP:             c.ClientIP(),
			UserAgent:      c.Request.UserAgent(),
			AcceptLanguage: c.GetHeader("Accept-Language"),
		})

		c.Next()
	}
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKey)
}

// GetRequestContext retrieves the full request context
func GetRequestContext(c *gin.Context) *RequestContext {
	if v, exists := c.Get(requestContextKey); exists {
		if reqCtx, ok := v.(*RequestContext); ok {
			return reqCtx
		}
	}
	return &RequestContext{}
}

// SetSessionKey records the conversation key for the access log.
func SetSessionKey(c *gin.Context, key string) {
	c.Set(SessionKeyKey, key)
}

// sanitizeCorrelationID drops client supplied ids that are too long or
// carry characters unsafe for log lines and headers.
func sanitizeCorrelationID(id string) string {
	if id == "" || len(id) > maxCorrelationIDLength {
		return ""
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return ""
		}
	}
	return id
}
