package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pulsecrm/acl/db"
	logger "github.com/pulsecrm/acl/logging"
)

// RateLimiter throttles callers with a Redis sliding window, keyed by the
// authenticated tenant and user so one noisy tenant cannot starve the rest.
// Unauthenticated requests fall back to the client IP. The limiter fails
// open: a Redis outage must not take permission checks down with it.
func RateLimiter(limit int, per time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString("tenantID") + ":" + c.GetString("userID")
		if key == ":" {
			key = c.ClientIP()
		}

		allowed, err := db.RateLimit(c, key, limit, per)
		if err != nil {
			logger.Warn("Rate limiter unavailable, allowing request",
				zap.Error(err), zap.String("key", key))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Duration", per.String())

		if !allowed {
			logger.Warn("Rate limit exceeded",
				zap.String("key", key),
				zap.Int("limit", limit),
				zap.Duration("per", per))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			c.Abort()
			return
		}

		c.Next()
	}
}
