package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vidforge/internal/config"
	handler "github.com/Harsh-BH/vidforge/internal/delivery/http"
	"github.com/Harsh-BH/vidforge/internal/pool"
	"github.com/Harsh-BH/vidforge/internal/provider"
	"github.com/Harsh-BH/vidforge/internal/publisher"
	"github.com/Harsh-BH/vidforge/internal/repository"
	"github.com/Harsh-BH/vidforge/internal/repository/memory"
	"github.com/Harsh-BH/vidforge/internal/repository/postgres"
	"github.com/Harsh-BH/vidforge/internal/repository/redis"
	"github.com/Harsh-BH/vidforge/internal/usecase"
)

func newLogger(level string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting vidforge API server", zap.String("storage", cfg.Database.Driver))

	// Set Gin mode
	gin.SetMode(cfg.Server.GinMode)

	ctx := context.Background()
	checks := map[string]handler.HealthCheck{}

	// Storage
	var (
		jobRepo   repository.JobRepository
		batchRepo repository.BatchRepository
	)
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		dbPool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
		}
		defer dbPool.Close()

		if err := dbPool.Ping(ctx); err != nil {
			logger.Fatal("Failed to ping PostgreSQL", zap.Error(err))
		}
		if err := postgres.EnsureSchema(ctx, dbPool); err != nil {
			logger.Fatal("Failed to apply schema", zap.Error(err))
		}
		logger.Info("Connected to PostgreSQL")

		jobRepo = postgres.NewPostgresJobRepository(dbPool)
		batchRepo = postgres.NewPostgresBatchRepository(dbPool)
		checks["postgres"] = dbPool.Ping
	default:
		jobRepo = memory.NewJobRepository()
		batchRepo = memory.NewBatchRepository()
	}

	// Idempotency keys
	var keys repository.IdempotencyStore = memory.NewIdempotencyStore()
	if cfg.Redis.URL != "" {
		redisOpts, err := goredis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Fatal("Failed to parse Redis URL", zap.Error(err))
		}
		rdb := goredis.NewClient(redisOpts)
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("Failed to ping Redis", zap.Error(err))
		}
		logger.Info("Connected to Redis")

		keys = redis.NewRedisIdempotencyStore(rdb)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	// Job events
	events := publisher.NewNopPublisher(logger)
	if cfg.RabbitMQ.URL != "" {
		events, err = publisher.NewRabbitMQPublisher(cfg.RabbitMQ.URL, logger)
		if err != nil {
			logger.Fatal("Failed to initialize RabbitMQ publisher", zap.Error(err))
		}
		logger.Info("Connected to RabbitMQ")
	}
	defer events.Close()

	generator := provider.NewClient(provider.Options{
		BaseURL:     cfg.Provider.BaseURL,
		APIKey:      cfg.Provider.APIKey,
		APIVersion:  cfg.Provider.APIVersion,
		Model:       cfg.Provider.Model,
		Timeout:     cfg.Provider.Timeout,
		MaxAttempts: cfg.Provider.MaxAttempts,
		BaseDelay:   cfg.Provider.RetryBaseDelay,
		MaxDelay:    cfg.Provider.RetryMaxDelay,
		Logger:      logger,
	})

	// Initialize use cases
	videoUC := usecase.NewVideoUsecase(jobRepo, keys, generator, events, usecase.VideoOptions{
		Model:         cfg.Provider.Model,
		SubmitTimeout: cfg.Video.SubmitTimeout,
		CancelTimeout: cfg.Video.CancelTimeout,
	}, logger)
	batchUC := usecase.NewBatchUsecase(batchRepo, jobRepo, videoUC, usecase.BatchOptions{
		DefaultConcurrency: cfg.Batch.DefaultConcurrency,
		MaxConcurrency:     cfg.Batch.MaxConcurrency,
		MaxSize:            cfg.Batch.MaxSize,
	}, logger)

	// Background status sync
	syncCtx, stopSync := context.WithCancel(ctx)
	defer stopSync()
	var syncPool *pool.SyncPool
	if cfg.Sync.Enabled {
		syncPool = pool.NewSyncPool(cfg.Sync.Workers, cfg.Sync.Interval, cfg.Provider.Timeout, videoUC, logger)
		syncPool.Start(syncCtx)
	}

	// Initialize router
	router := handler.NewRouter(&handler.RouterDeps{
		Videos:          videoUC,
		Batches:         batchUC,
		Logger:          logger,
		RateLimitPerMin: cfg.Server.RateLimit,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		HealthChecks:    checks,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("API server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down API server...")

	stopSync()
	if syncPool != nil {
		syncPool.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Let in-flight submissions record their outcome.
	videoUC.Wait()

	logger.Info("API server stopped")
}
