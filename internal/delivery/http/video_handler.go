package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vidforge/internal/domain"
	"github.com/Harsh-BH/vidforge/internal/usecase"
)

// VideoHandler handles HTTP requests for single video jobs.
type VideoHandler struct {
	videos *usecase.VideoUsecase
	logger *zap.Logger
}

// NewVideoHandler creates a new VideoHandler.
func NewVideoHandler(videos *usecase.VideoUsecase, logger *zap.Logger) *VideoHandler {
	return &VideoHandler{videos: videos, logger: logger}
}

// Create handles POST /api/v1/videos
func (h *VideoHandler) Create(c *gin.Context) {
	var req domain.CreateVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error(), "kind": "validation"})
		return
	}

	job, err := h.videos.CreateVideo(c.Request.Context(), &req)
	if err != nil {
		writeError(c, h.logger, "Create video", err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// List handles GET /api/v1/videos
func (h *VideoHandler) List(c *gin.Context) {
	filter, opts, err := parseListQuery(c)
	if err != nil {
		writeError(c, h.logger, "List videos", err)
		return
	}

	page, err := h.videos.ListJobs(c.Request.Context(), filter, opts)
	if err != nil {
		writeError(c, h.logger, "List videos", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Get handles GET /api/v1/videos/:id
func (h *VideoHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	job, err := h.videos.GetVideoStatus(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, "Get video", err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// Result handles GET /api/v1/videos/:id/result
func (h *VideoHandler) Result(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	result, err := h.videos.GetVideoResult(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, "Get video result", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Content handles GET /api/v1/videos/:id/content
func (h *VideoHandler) Content(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	body, contentType, err := h.videos.OpenVideoContent(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, "Download video", err)
		return
	}
	defer body.Close()

	c.DataFromReader(http.StatusOK, -1, contentType, body, map[string]string{
		"Content-Disposition": `attachment; filename="` + id.String() + `.mp4"`,
	})
}

// Sync handles POST /api/v1/videos/:id/sync
func (h *VideoHandler) Sync(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	job, err := h.videos.SyncJobStatus(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, "Sync video", err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// Cancel handles POST /api/v1/videos/:id/cancel
func (h *VideoHandler) Cancel(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	job, err := h.videos.CancelVideo(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, "Cancel video", err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func parseListQuery(c *gin.Context) (domain.JobFilter, domain.ListOptions, error) {
	var (
		filter domain.JobFilter
		opts   domain.ListOptions
	)
	filter.Status = domain.JobStatus(c.Query("status"))
	filter.Priority = domain.Priority(c.Query("priority"))
	for key, dst := range map[string]**time.Time{
		"created_after":  &filter.CreatedAfter,
		"created_before": &filter.CreatedBefore,
	} {
		v := c.Query(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, opts, domain.Validationf("%s must be an RFC 3339 timestamp", key)
		}
		*dst = &t
	}
	for key, dst := range map[string]*int{"page": &opts.Page, "page_size": &opts.PageSize} {
		v := c.Query(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, opts, domain.Validationf("%s must be an integer", key)
		}
		*dst = n
	}
	opts.Sort = domain.SortField(c.Query("sort"))
	opts.Order = domain.SortOrder(c.Query("order"))
	return filter, opts, nil
}
