package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appLogger "github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/logger"
)

// pollPaths are polled by orchestrators and logged at debug level.
var pollPaths = map[string]struct{}{
	"/healthz": {},
	"/readyz":  {},
	"/metrics": {},
}

// Logger emits access logs with correlation identifiers. Client IPs and
// conversation keys are masked.
func Logger(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		fields := []zap.Field{
			zap.String("trace_id", GetTraceID(c)),
			zap.String("request_id", requestIDFromContext(c.Request.Context())),
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", appLogger.MaskIP(c.ClientIP())),
		}
		if key := c.GetString(SessionKeyKey); key != "" {
			fields = append(fields, zap.String("session", appLogger.MaskSessionKey(key)))
		}

		if len(c.Errors) > 0 {
			log.Error("request failed", append(fields, zap.String("errors", c.Errors.String()))...)
			return
		}

		level := zapcore.InfoLevel
		if _, polled := pollPaths[c.Request.URL.Path]; polled {
			level = zapcore.DebugLevel
		}
		log.Log(level, "request completed", fields...)
	}
}
