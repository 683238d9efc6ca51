package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	corsAllowMethods  = "GET,POST,OPTIONS"
	corsAllowHeaders  = "Origin,Content-Type,Accept,Accept-Language,X-Request-ID,X-Trace-ID,traceparent,tracestate"
	corsExposeHeaders = "X-Request-ID,X-Trace-ID,Retry-After"
)

// CORS lets the web chat widget call the registration API from the sites
// that embed it. "*" allows any origin without credentials.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	origins := make(map[string]struct{}, len(allowedOrigins))
	allowAll := false
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
			break
		}
		origins[origin] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowed := false
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
			allowed = true
		case origin != "":
			c.Header("Vary", "Origin")
			if _, ok := origins[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Credentials", "true")
				allowed = true
			}
		}
		if allowed {
			c.Header("Access-Control-Expose-Headers", corsExposeHeaders)
		}

		if c.Request.Method == http.MethodOptions {
			if allowed {
				c.Header("Access-Control-Allow-Methods", corsAllowMethods)
				c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
				c.Header("Access-Control-Max-Age", "86400")
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
