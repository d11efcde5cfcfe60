package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	logger "github.com/pulsecrm/acl/logging"
)

// Logger logs every request with its tenant scope. Check traffic is hot
// path, so successful checks log at debug and only mutations and failures
// log at info and above.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("tenantID", c.GetString("tenantID")),
			zap.String("userID", c.GetString("userID")),
			zap.String("ip", c.ClientIP()),
		}

		switch {
		case len(c.Errors) > 0:
			logger.Error("Request failed", append(fields, zap.String("errors", c.Errors.String()))...)
		case c.Writer.Status() >= 400:
			logger.Warn("Request rejected", fields...)
		case c.Request.Method == "GET" || path == "/api/v1/acl/check" || path == "/api/v1/acl/batch-check":
			logger.Debug("Request processed", fields...)
		default:
			logger.Info("Request processed", fields...)
		}
	}
}
