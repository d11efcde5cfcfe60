// router/router.go

package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pulsecrm/acl/controller"
	"github.com/pulsecrm/acl/middleware"
)

func SetupRouter(
	controllers *controller.Controllers,
	rateLimitRequests int,
	rateLimitDuration time.Duration,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	// AuthContext runs before the limiter so throttling keys on the
	// authenticated tenant and user.
	router.Use(middleware.AuthContext())
	router.Use(middleware.RateLimiter(rateLimitRequests, rateLimitDuration))

	api := router.Group("/api/v1")

	controllers.ACL.RegisterRoutes(api)

	return router
}
