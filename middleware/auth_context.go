package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthContext extracts the authenticated principal that the API gateway
// forwards on trusted headers and stores it on the request context. The
// engine assumes authentication already happened upstream; requests with no
// identity are rejected here.
func AuthContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		tenantID := c.GetHeader("X-Tenant-ID")
		if userID == "" || tenantID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing identity headers"})
			c.Abort()
			return
		}

		c.Set("userID", userID)
		c.Set("tenantID", tenantID)

		if rawRoles := c.GetHeader("X-User-Roles"); rawRoles != "" {
			roles := strings.Split(rawRoles, ",")
			for i := range roles {
				roles[i] = strings.TrimSpace(roles[i])
			}
			c.Set("roles", roles)
		}

		c.Next()
	}
}
