// util/http_util.go
package util

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	logger "github.com/pulsecrm/acl/logging"
)

func RespondWithError(c *gin.Context, code int, message string, err error) {
	logger.Error(message,
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method))
	c.JSON(code, gin.H{"error": message})
}

func GetUserIDFromContext(c *gin.Context) (string, error) {
	userID, exists := c.Get("userID")
	if !exists {
		return "", nil
	}
	return userID.(string), nil
}

func GetTenantIDFromContext(c *gin.Context) (string, error) {
	tenantID, exists := c.Get("tenantID")
	if !exists {
		return "", nil
	}
	return tenantID.(string), nil
}

// GetRolesFromContext returns the authenticated caller's roles. Roles come
// from the trusted gateway, never from the request body.
func GetRolesFromContext(c *gin.Context) []string {
	raw, exists := c.Get("roles")
	if !exists {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		return strings.Split(v, ",")
	}
	return nil
}
