package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/trackdrop/backend/internal/config"
	"github.com/trackdrop/backend/internal/core/ports"
	"github.com/trackdrop/backend/internal/infrastructure/logger"
	"github.com/trackdrop/backend/internal/transport/http/handlers"
)

type RouterConfig struct {
	Downloads ports.DownloadService
	Queue     ports.JobQueue
	Timeline  ports.TimelineRepository
	Stats     handlers.StatsCollector
	Logger    *logger.Logger
	Config    *config.Config
}

func SetupRoutes(app *fiber.App, cfg RouterConfig) {
	downloadHandler := handlers.NewDownloadHandler(cfg.Downloads, cfg.Logger)
	fileHandler := handlers.NewFileHandler(cfg.Downloads, cfg.Config.Downloads.DefaultFormat, cfg.Config.Downloads.DefaultBitrate, cfg.Logger)
	timelineHandler := handlers.NewTimelineHandler(cfg.Timeline)
	healthHandler := handlers.NewHealthHandler(cfg.Queue, cfg.Stats, cfg.Logger)

	streamInterval := cfg.Config.Worker.PollInterval
	if streamInterval < 250*time.Millisecond {
		streamInterval = 250 * time.Millisecond
	}
	streamHandler := handlers.NewProgressStreamHandler(cfg.Downloads, streamInterval, cfg.Logger)

	app.Get("/health", healthHandler.Health)

	// Browser-facing routes
	app.Get("/", fileHandler.Index)
	app.Post("/download", downloadHandler.StartDownload)
	app.Get("/progress/:task_id", downloadHandler.GetProgress)
	app.Get("/downloads/:filename", fileHandler.ServeFile)
	app.Get("/download_file/*", fileHandler.ServeFile)

	// Live progress
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	app.Get("/ws/progress/:task_id", websocket.New(streamHandler.Handle))

	// API v1 routes
	api := app.Group("/api/v1")
	api.Get("/files", fileHandler.ListFiles)
	api.Get("/timeline", timelineHandler.GetEvents)
}
