package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/trackdrop/backend/internal/core/ports"
	"github.com/trackdrop/backend/internal/core/services"
	"github.com/trackdrop/backend/internal/infrastructure/logger"
	"github.com/trackdrop/backend/internal/transport/http/dto"
)

type DownloadHandler struct {
	service ports.DownloadService
	logger  *logger.Logger
}

func NewDownloadHandler(service ports.DownloadService, logger *logger.Logger) *DownloadHandler {
	return &DownloadHandler{service: service, logger: logger}
}

func (h *DownloadHandler) StartDownload(c *fiber.Ctx) error {
	var req dto.DownloadRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("download_body_parse_failed", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid request body",
		})
	}

	if errs := req.Validate(); len(errs) > 0 {
		h.logger.Warnw("download_validation_failed", "details", errs)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   "No URL provided",
			Details: errs,
		})
	}

	task, err := h.service.Submit(c.UserContext(), ports.SubmitDownloadInput{
		URL:     req.URL,
		Format:  req.Format,
		Bitrate: req.Bitrate,
	})
	if err != nil {
		if msg, ok := submitClientError(err); ok {
			h.logger.Warnw("download_rejected", "url", req.URL, "error", err)
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error:   msg,
				Details: []string{err.Error()},
			})
		}
		h.logger.Errorw("download_submit_failed", "url", req.URL, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}

	return c.JSON(dto.DownloadStartedResponse{
		TaskID: task.ID,
		Status: "started",
	})
}

func (h *DownloadHandler) GetProgress(c *fiber.Ctx) error {
	taskID := c.Params("task_id")
	progress, err := h.service.GetProgress(c.UserContext(), taskID)
	if err != nil {
		if errors.Is(err, services.ErrTaskNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: "Task not found",
			})
		}
		h.logger.Errorw("progress_get_failed", "task_id", taskID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}
	return c.JSON(progress)
}

func submitClientError(err error) (string, bool) {
	switch {
	case errors.Is(err, services.ErrMissingURL):
		return "No URL provided", true
	case errors.Is(err, services.ErrInvalidURL):
		return "Invalid URL", true
	case errors.Is(err, services.ErrUnsupportedFormat):
		return "Unsupported audio format", true
	case errors.Is(err, services.ErrInvalidBitrate):
		return "Invalid bitrate", true
	}
	return "", false
}
