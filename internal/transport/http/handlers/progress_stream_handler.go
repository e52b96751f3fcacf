package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/trackdrop/backend/internal/core/ports"
	"github.com/trackdrop/backend/internal/core/services"
	"github.com/trackdrop/backend/internal/infrastructure/logger"
	"github.com/trackdrop/backend/internal/transport/http/dto"
)

// ProgressStreamHandler pushes task snapshots over a websocket until the task
// reaches a terminal status or disappears.
type ProgressStreamHandler struct {
	service  ports.DownloadService
	interval time.Duration
	logger   *logger.Logger
}

func NewProgressStreamHandler(service ports.DownloadService, interval time.Duration, logger *logger.Logger) *ProgressStreamHandler {
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressStreamHandler{service: service, interval: interval, logger: logger}
}

func (h *ProgressStreamHandler) Handle(c *websocket.Conn) {
	defer c.Close()
	taskID := c.Params("task_id")

	// Reads only detect the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var lastSent time.Time
	for {
		progress, err := h.service.GetProgress(context.Background(), taskID)
		if err != nil {
			msg := "Task not found"
			if !errors.Is(err, services.ErrTaskNotFound) {
				h.logger.Errorw("progress_stream_get_failed", "task_id", taskID, "error", err)
				msg = err.Error()
			}
			_ = c.WriteJSON(dto.ErrorResponse{Error: msg})
			return
		}

		if !progress.UpdatedAt.Equal(lastSent) {
			if err := c.WriteJSON(progress); err != nil {
				h.logger.Debugw("progress_stream_write_failed", "task_id", taskID, "error", err)
				return
			}
			lastSent = progress.UpdatedAt
		}
		if progress.Status.IsTerminal() {
			return
		}

		select {
		case <-gone:
			return
		case <-ticker.C:
		}
	}
}
