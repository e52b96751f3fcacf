package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/trackdrop/backend/internal/core/ports"
	"github.com/trackdrop/backend/internal/domain"
	"github.com/trackdrop/backend/internal/transport/http/dto"
)

const maxTimelineLimit = 200

type TimelineHandler struct {
	repo ports.TimelineRepository
}

func NewTimelineHandler(repo ports.TimelineRepository) *TimelineHandler {
	return &TimelineHandler{repo: repo}
}

// GetEvents lists recent download history, optionally for one task.
func (h *TimelineHandler) GetEvents(c *fiber.Ctx) error {
	if taskID := c.Query("task_id"); taskID != "" {
		events, err := h.repo.GetByResource(c.UserContext(), domain.ResourceTypeTask, taskID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		return c.JSON(events)
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid limit"})
		}
		limit = min(n, maxTimelineLimit)
	}

	events, err := h.repo.GetAll(c.UserContext(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(events)
}
