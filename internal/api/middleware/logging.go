package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dextop-world/dextop/internal/logger"
)

// LoggingMiddleware logs HTTP requests. Query strings are logged without
// the token parameter.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		// Process request
		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		// Log format: [method] path?query - status (latency)
		if raw := redactedQuery(c); raw != "" {
			path = path + "?" + raw
		}

		if statusCode >= 500 {
			logger.Warnf("[%s] %s - %d (%v)", c.Request.Method, path, statusCode, latency)
			return
		}
		logger.Infof("[%s] %s - %d (%v)", c.Request.Method, path, statusCode, latency)
	}
}

func redactedQuery(c *gin.Context) string {
	q := c.Request.URL.Query()
	if len(q) == 0 {
		return ""
	}
	if q.Has("token") {
		q.Set("token", "REDACTED")
	}
	return q.Encode()
}
