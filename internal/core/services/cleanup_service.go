package services

import (
	"context"
	"sync"
	"time"

	"github.com/trackdrop/backend/internal/config"
	"github.com/trackdrop/backend/internal/core/ports"
	"github.com/trackdrop/backend/internal/domain"
	"github.com/trackdrop/backend/internal/infrastructure/logger"
)

// CleanupService is the retention sweeper: it expires old files and evicts
// finished task records, each on its own ticker.
type CleanupService struct {
	files             ports.FileStore
	tasks             ports.TaskRegistry
	timelineRepo      ports.TimelineRepository
	timeline          *timelineRecorder
	maxFileAge        time.Duration
	fileInterval      time.Duration
	evictInterval     time.Duration
	timelineRetention time.Duration
	logger            *logger.Logger
	now               func() time.Time

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewCleanupService(downloads config.DownloadsConfig, tasksCfg config.TasksConfig, files ports.FileStore, tasks ports.TaskRegistry, log *logger.Logger) *CleanupService {
	return &CleanupService{
		files:         files,
		tasks:         tasks,
		timeline:      &timelineRecorder{logger: log},
		maxFileAge:    downloads.MaxFileAge,
		fileInterval:  downloads.CleanupInterval,
		evictInterval: tasksCfg.EvictInterval,
		logger:        log,
		now:           time.Now,
		done:          make(chan struct{}),
	}
}

// SetTimelineRepo enables purge events and trimming of events older than retention.
func (s *CleanupService) SetTimelineRepo(repo ports.TimelineRepository, retention time.Duration) {
	s.timelineRepo = repo
	s.timeline.repo = repo
	s.timelineRetention = retention
}

// Start runs one file sweep immediately, then keeps sweeping until Stop.
func (s *CleanupService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(runCtx)

	s.logger.Infow("cleanup_service_started",
		"max_file_age", s.maxFileAge,
		"file_interval", s.fileInterval,
		"evict_interval", s.evictInterval,
	)
}

func (s *CleanupService) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	cancel := s.cancel
	s.mu.Unlock()

	if !started {
		return
	}
	cancel()
	<-s.done
	s.logger.Infow("cleanup_service_stopped")
}

func (s *CleanupService) run(ctx context.Context) {
	defer close(s.done)

	s.guard("file_sweep", func() { s.SweepFiles(ctx) })

	fileTicker := time.NewTicker(s.fileInterval)
	defer fileTicker.Stop()
	evictTicker := time.NewTicker(s.evictInterval)
	defer evictTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fileTicker.C:
			s.guard("file_sweep", func() { s.SweepFiles(ctx) })
		case <-evictTicker.C:
			s.guard("task_eviction", func() { s.EvictTasks() })
		}
	}
}

// guard keeps a panicking pass from ending the sweeper loop.
func (s *CleanupService) guard(pass string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("cleanup_pass_panic", "pass", pass, "panic", r)
		}
	}()
	fn()
}

// SweepFiles deletes expired downloads and trims old timeline events.
func (s *CleanupService) SweepFiles(ctx context.Context) int {
	removed, err := s.files.PurgeExpired(s.maxFileAge)
	if err != nil {
		s.logger.Errorw("file_sweep_failed", "error", err)
	} else if removed > 0 {
		s.logger.Infow("file_sweep_ok", "removed", removed, "max_file_age", s.maxFileAge)
		s.timeline.record(ctx, domain.EventTypeFilesPurged, domain.EventStatusSuccess, "", "expired files removed", map[string]any{
			"removed": removed,
		})
	}

	if s.timelineRepo != nil && s.timelineRetention > 0 {
		trimmed, err := s.timelineRepo.CleanupOld(ctx, s.timelineRetention)
		if err != nil {
			s.logger.Errorw("timeline_trim_failed", "error", err)
		} else if trimmed > 0 {
			s.logger.Infow("timeline_trim_ok", "removed", trimmed)
		}
	}
	return removed
}

// EvictTasks drops terminal task records past their grace period.
func (s *CleanupService) EvictTasks() int {
	evicted := s.tasks.EvictExpired(s.now())
	if evicted > 0 {
		s.logger.Infow("task_eviction_ok", "evicted", evicted)
	}
	return evicted
}
