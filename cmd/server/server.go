package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/trackdrop/backend/internal/config"
	"github.com/trackdrop/backend/internal/core/ports"
	"github.com/trackdrop/backend/internal/core/services"
	"github.com/trackdrop/backend/internal/infrastructure/db"
	"github.com/trackdrop/backend/internal/infrastructure/logger"
	"github.com/trackdrop/backend/internal/infrastructure/remote"
	"github.com/trackdrop/backend/internal/infrastructure/system"
	transporthttp "github.com/trackdrop/backend/internal/transport/http"
	httpmw "github.com/trackdrop/backend/internal/transport/http/middleware"
	"gorm.io/gorm"
)

// application holds everything with a lifecycle.
type application struct {
	cfg      *config.Config
	log      *logger.Logger
	database *gorm.DB
	fiber    *fiber.App
	worker   *services.DownloadWorker
	sweeper  *services.CleanupService
}

func newApplication(cfg *config.Config, log *logger.Logger) (*application, error) {
	app := &application{cfg: cfg, log: log}

	timelineRepo, err := app.openTimeline()
	if err != nil {
		return nil, err
	}

	files, err := services.NewFileStore(cfg.Downloads.Dir, cfg.Downloads.MaxFileAge, log.Named("files"))
	if err != nil {
		return nil, err
	}
	tasks := services.NewTaskService(cfg.Tasks.GracePeriod)

	app.worker = services.NewDownloadWorker(cfg.Worker, tasks, files, log.Named("worker"))
	app.worker.SetTimelineRepo(timelineRepo)
	if cfg.Remote.Enabled {
		publisher, err := remote.NewSFTPPublisher(cfg.Remote, cfg.Security.EncryptionKey, log.Named("sftp"))
		if err != nil {
			return nil, err
		}
		app.worker.SetPublisher(publisher, cfg.Remote.PublishTimeout)
		log.Infow("remote_publisher_enabled", "host", cfg.Remote.Host, "dir", cfg.Remote.Dir)
	}

	app.sweeper = services.NewCleanupService(cfg.Downloads, cfg.Tasks, files, tasks, log.Named("cleanup"))
	app.sweeper.SetTimelineRepo(timelineRepo, cfg.Database.TimelineRetention)

	downloads := services.NewDownloadService(cfg.Downloads, cfg.Worker.Command, tasks, files, app.worker, log.Named("downloads"))
	downloads.SetTimelineRepo(timelineRepo)

	app.fiber = newFiberApp(cfg, log)
	transporthttp.SetupRoutes(app.fiber, transporthttp.RouterConfig{
		Downloads: downloads,
		Queue:     app.worker,
		Timeline:  timelineRepo,
		Stats:     system.NewCollector(files.Root()),
		Logger:    log,
		Config:    cfg,
	})

	return app, nil
}

// openTimeline connects to Postgres when enabled; otherwise events stay in memory.
func (a *application) openTimeline() (ports.TimelineRepository, error) {
	if !a.cfg.Database.Enabled {
		a.log.Info("database disabled, timeline kept in memory")
		return db.NewMemoryTimelineRepository(0, a.log.Named("timeline")), nil
	}

	database, err := db.NewPostgresConnection(a.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.log.Info("database connection established")

	if err := db.RunMigrations(database); err != nil {
		_ = db.Close(database)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	a.log.Info("database migrations completed")

	a.database = database
	return db.NewTimelineRepository(database, a.log.Named("timeline")), nil
}

func newFiberApp(cfg *config.Config, log *logger.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		ErrorHandler:          globalErrorHandler(log),
		DisableStartupMessage: true,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	allowedOrigins := "*"
	if len(cfg.Server.AllowedOrigins) > 0 {
		allowedOrigins = strings.Join(cfg.Server.AllowedOrigins, ",")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, " + cfg.Features.RequestIDHeader,
		AllowMethods: "GET, POST, HEAD",
	}))

	app.Use(httpmw.RequestID(cfg.Features.RequestIDHeader))
	if cfg.Features.EnableRequestLogging {
		app.Use(httpmw.AccessLog(log))
	}
	return app
}

// run serves until SIGINT/SIGTERM and then tears down in order: HTTP, worker,
// sweeper, database.
func (a *application) run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.worker.Start(ctx)
	a.sweeper.Start(ctx)

	addr := a.cfg.Server.Address()
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.fiber.Listen(addr)
	}()
	a.log.Infow("server_started", "addr", addr, "download_dir", a.cfg.Downloads.Dir)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case sig := <-quit:
		a.log.Infow("shutdown_signal_received", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("server failed: %w", err)
		}
	}

	a.shutdown()
	return runErr
}

func (a *application) shutdown() {
	a.log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.fiber.ShutdownWithContext(ctx); err != nil {
		a.log.Errorf("server forced to shutdown: %v", err)
	}

	a.worker.Stop()
	a.sweeper.Stop()

	if err := db.Close(a.database); err != nil {
		a.log.Errorf("failed to close database connection: %v", err)
	}

	a.log.Info("server exited gracefully")
}

func globalErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}

		if code < fiber.StatusInternalServerError {
			log.Warnw("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
				"request_id", httpmw.GetRequestID(c),
			)
		} else {
			log.Errorw("request error",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
				"request_id", httpmw.GetRequestID(c),
			)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
