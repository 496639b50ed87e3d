package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vidforge/internal/usecase"
)

const healthTimeout = 3 * time.Second

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// HealthHandler handles health check requests.
type HealthHandler struct {
	videos *usecase.VideoUsecase
	checks map[string]HealthCheck
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. checks are keyed by service
// name, e.g. "postgres" or "redis".
func NewHealthHandler(videos *usecase.VideoUsecase, checks map[string]HealthCheck, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{videos: videos, checks: checks, logger: logger}
}

// Health handles GET /api/v1/health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	services := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("Health check failed", zap.String("service", name), zap.Error(err))
			services[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		services[name] = "ok"
	}

	// The provider being down degrades the service without failing the health check.
	overall := "ok"
	if h.videos.ProviderHealthy(ctx) {
		services["provider"] = "ok"
	} else {
		services["provider"] = "down"
		overall = "degraded"
	}
	if status != http.StatusOK {
		overall = "unavailable"
	}

	c.JSON(status, gin.H{"status": overall, "services": services})
}
