package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pulsecrm/acl/audit"
	"github.com/pulsecrm/acl/cache"
	"github.com/pulsecrm/acl/config"
	"github.com/pulsecrm/acl/controller"
	"github.com/pulsecrm/acl/dao"
	"github.com/pulsecrm/acl/db"
	"github.com/pulsecrm/acl/engine"
	logger "github.com/pulsecrm/acl/logging"
	"github.com/pulsecrm/acl/router"
	"github.com/pulsecrm/acl/service"
	"github.com/pulsecrm/acl/util"
)

func main() {
	// Initialize configuration
	if err := config.InitConfig(); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	// Initialize logger
	logger.InitLogger(config.GetString("log.dir"))
	defer logger.Sync()

	// Initialize Neo4j
	if err := db.InitNeo4j(); err != nil {
		logger.Fatal("Failed to initialize Neo4j", zap.Error(err))
	}
	defer db.CloseNeo4j()

	// Initialize Redis
	if err := db.InitRedis(); err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer db.CloseRedis()

	// Initialize EventBus
	eventBus := util.NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eventBus.Start(ctx)

	// Initialize utilities
	validationUtil := util.NewValidationUtil()
	notificationService := util.NewNotificationService()
	metrics := util.NewMetrics()
	auditRepository, err := audit.NewElasticsearchRepository(config.GetString("elasticsearch.url"))
	if err != nil {
		logger.Fatal("Failed to initialize audit repository", zap.Error(err))
	}
	auditService := audit.NewService(auditRepository)

	// Initialize store and cache
	aclDAO := dao.NewACLDAO(db.Neo4jDriver, auditService)
	shardCache := cache.NewShardCache(
		config.GetDuration("acl.snapshotTTL"),
		config.GetDuration("acl.decisionTTL"),
	)
	shardCache.StartSweeper(ctx, config.GetDuration("acl.decisionTTL"))

	// Initialize resolution engine
	resolver := engine.NewResolver(
		aclDAO,
		shardCache,
		config.GetStringSlice("acl.superAdminRoles"),
		metrics,
		config.GetDuration("acl.storeTimeout"),
	)
	batchCoordinator := engine.NewBatchCoordinator(resolver, metrics, config.GetInt("acl.batchConcurrency"))

	// Initialize service
	aclService := service.NewACLService(
		aclDAO,
		resolver,
		batchCoordinator,
		shardCache,
		validationUtil,
		notificationService,
		eventBus,
		auditService,
		metrics,
		db.PublishInvalidation,
		db.LockShard,
		db.UnlockShard,
	)

	// Deliver invalidations published by other engine instances
	db.SubscribeInvalidations(ctx, aclService.HandleRemoteInvalidation)

	// Initialize controllers
	controllers := controller.InitializeControllers(aclService, auditService)

	// Set up Gin
	gin.SetMode(gin.ReleaseMode)
	engineRouter := router.SetupRouter(
		controllers,
		config.GetInt("ratelimit.requests"),
		config.GetDuration("ratelimit.window"),
	)

	// Set up the server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", config.GetString("server.port")),
		Handler: engineRouter,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", config.GetString("server.port")))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
