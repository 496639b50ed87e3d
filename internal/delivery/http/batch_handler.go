package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vidforge/internal/domain"
	"github.com/Harsh-BH/vidforge/internal/usecase"
)

// BatchHandler handles HTTP requests for batches.
type BatchHandler struct {
	batches *usecase.BatchUsecase
	logger  *zap.Logger
}

// NewBatchHandler creates a new BatchHandler.
func NewBatchHandler(batches *usecase.BatchUsecase, logger *zap.Logger) *BatchHandler {
	return &BatchHandler{batches: batches, logger: logger}
}

// Create handles POST /api/v1/batches
func (h *BatchHandler) Create(c *gin.Context) {
	var req domain.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error(), "kind": "validation"})
		return
	}

	batch, err := h.batches.CreateBatch(c.Request.Context(), &req)
	if err != nil {
		writeError(c, h.logger, "Create batch", err)
		return
	}
	c.JSON(http.StatusCreated, batch)
}

// List handles GET /api/v1/batches
func (h *BatchHandler) List(c *gin.Context) {
	batches, err := h.batches.ListBatches(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "List batches", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": batches, "total": len(batches)})
}

// Get handles GET /api/v1/batches/:id
func (h *BatchHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	batch, err := h.batches.GetBatchStatus(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, "Get batch", err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// Process handles POST /api/v1/batches/:id/process?concurrency=N
func (h *BatchHandler) Process(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	concurrency := 0
	if v := c.Query("concurrency"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(c, h.logger, "Process batch", domain.Validationf("concurrency must be a positive integer"))
			return
		}
		concurrency = n
	}

	batch, err := h.batches.ProcessBatch(c.Request.Context(), id, concurrency)
	if err != nil {
		writeError(c, h.logger, "Process batch", err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// Cancel handles POST /api/v1/batches/:id/cancel
func (h *BatchHandler) Cancel(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	batch, err := h.batches.CancelBatch(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, "Cancel batch", err)
		return
	}
	c.JSON(http.StatusOK, batch)
}
