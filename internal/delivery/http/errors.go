package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vidforge/internal/domain"
)

// writeError maps a domain error kind to an HTTP status.
func writeError(c *gin.Context, logger *zap.Logger, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "validation"})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "kind": "not_found"})
	case errors.Is(err, domain.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "kind": "conflict"})
	case errors.Is(err, domain.ErrExternalService):
		logger.Error(op+" failed", zap.Error(err), zap.String("request_id", c.GetString("request_id")))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Video provider unavailable", "kind": "external_service"})
	default:
		logger.Error(op+" failed", zap.Error(err), zap.String("request_id", c.GetString("request_id")))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// parseID reads the :id path parameter, writing a 400 when it is not a UUID.
func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format", "kind": "validation"})
		return uuid.Nil, false
	}
	return id, true
}
