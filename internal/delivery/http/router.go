package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vidforge/internal/delivery/http/middleware"
	"github.com/Harsh-BH/vidforge/internal/usecase"
)

// RouterDeps holds everything the router needs.
type RouterDeps struct {
	Videos          *usecase.VideoUsecase
	Batches         *usecase.BatchUsecase
	Logger          *zap.Logger
	RateLimitPerMin int
	MaxBodyBytes    int64
	HealthChecks    map[string]HealthCheck
}

// NewRouter creates and configures the Gin router with all routes and middleware.
func NewRouter(deps *RouterDeps) *gin.Engine {
	router := gin.New()
	logger := deps.Logger

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger(logger))

	// Metrics endpoint (no rate limiting)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		// Health check (no rate limiting)
		healthHandler := NewHealthHandler(deps.Videos, deps.HealthChecks, logger)
		v1.GET("/health", healthHandler.Health)

		limited := v1.Group("", middleware.RateLimiter(deps.RateLimitPerMin), middleware.BodySizeLimit(deps.MaxBodyBytes))

		videoHandler := NewVideoHandler(deps.Videos, logger)
		limited.POST("/videos", videoHandler.Create)
		limited.GET("/videos", videoHandler.List)
		limited.GET("/videos/:id", videoHandler.Get)
		limited.GET("/videos/:id/result", videoHandler.Result)
		limited.GET("/videos/:id/content", videoHandler.Content)
		limited.POST("/videos/:id/sync", videoHandler.Sync)
		limited.POST("/videos/:id/cancel", videoHandler.Cancel)

		batchHandler := NewBatchHandler(deps.Batches, logger)
		limited.POST("/batches", batchHandler.Create)
		limited.GET("/batches", batchHandler.List)
		limited.GET("/batches/:id", batchHandler.Get)
		limited.POST("/batches/:id/process", batchHandler.Process)
		limited.POST("/batches/:id/cancel", batchHandler.Cancel)

		// WebSocket for real-time updates
		wsHandler := NewWebSocketHandler(deps.Videos, logger)
		v1.GET("/videos/:id/stream", wsHandler.Stream)
	}

	return router
}
