package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/trackdrop/backend/internal/core/ports"
	"github.com/trackdrop/backend/internal/infrastructure/logger"
	"github.com/trackdrop/backend/internal/infrastructure/system"
)

type StatsCollector interface {
	Disk(ctx context.Context) (*system.DiskStats, error)
	Host(ctx context.Context) *system.HostStats
}

type HealthHandler struct {
	queue  ports.JobQueue
	stats  StatsCollector
	logger *logger.Logger
}

func NewHealthHandler(queue ports.JobQueue, stats StatsCollector, logger *logger.Logger) *HealthHandler {
	return &HealthHandler{queue: queue, stats: stats, logger: logger}
}

// Health stays 200 when host stats cannot be read; the disk block is just omitted.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	resp := fiber.Map{
		"status":      "ok",
		"queue_depth": h.queue.QueueDepth(),
	}

	if h.stats != nil {
		disk, err := h.stats.Disk(c.UserContext())
		if err != nil {
			h.logger.Warnw("health_disk_stats_failed", "error", err)
		} else {
			resp["disk"] = disk
		}
		resp["host"] = h.stats.Host(c.UserContext())
	}

	return c.JSON(resp)
}
