package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID injects a correlation identifier into the context and headers.
// Malformed client ids are replaced.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := sanitizeCorrelationID(c.GetHeader(requestIDHeader))
		if reqID == "" {
			reqID = uuid.NewString()
		}

		c.Writer.Header().Set(requestIDHeader, reqID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.RequestIDKey{}, reqID))

		c.Next()
	}
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(logger.RequestIDKey{}).(string)
	return id
}
