package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vidforge/internal/usecase"
)

const streamInterval = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler streams job status changes over a websocket.
type WebSocketHandler struct {
	videos *usecase.VideoUsecase
	logger *zap.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(videos *usecase.VideoUsecase, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{videos: videos, logger: logger}
}

// Stream handles GET /api/v1/videos/:id/stream (WebSocket upgrade). It sends
// the job snapshot whenever its status or update time changes and closes once
// the job is terminal.
func (h *WebSocketHandler) Stream(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	// Unknown ids are rejected before the upgrade.
	job, err := h.videos.GetVideoStatus(ctx, id)
	if err != nil {
		writeError(c, h.logger, "Stream video", err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Debug("WebSocket connection opened", zap.String("job_id", id.String()))

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	var lastSent time.Time
	for {
		if !job.UpdatedAt.Equal(lastSent) {
			if err := conn.WriteJSON(job); err != nil {
				h.logger.Debug("WebSocket write failed (client disconnected)", zap.Error(err))
				return
			}
			lastSent = job.UpdatedAt
		}
		if job.Status.IsTerminal() {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(job.Status)))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		job, err = h.videos.GetVideoStatus(ctx, id)
		if err != nil {
			conn.WriteJSON(gin.H{"error": err.Error()})
			return
		}
	}
}
