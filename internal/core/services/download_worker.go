package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/trackdrop/backend/internal/config"
	"github.com/trackdrop/backend/internal/core/ports"
	"github.com/trackdrop/backend/internal/domain"
	"github.com/trackdrop/backend/internal/infrastructure/logger"
	"github.com/trackdrop/backend/internal/infrastructure/runner"
)

// DownloadWorker runs queued jobs one at a time in a single goroutine.
type DownloadWorker struct {
	cfg       config.WorkerConfig
	tasks     ports.TaskRegistry
	files     ports.FileStore
	timeline  *timelineRecorder
	publisher ports.Publisher
	logger    *logger.Logger
	now       func() time.Time

	// publishTimeout bounds a publish, which holds up the next queued job.
	publishTimeout time.Duration

	jobs    chan domain.Job
	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

type jobOutcome struct {
	paths      []string
	err        error
	total      int
	downloaded int
	duration   time.Duration
}

func NewDownloadWorker(cfg config.WorkerConfig, tasks ports.TaskRegistry, files ports.FileStore, log *logger.Logger) *DownloadWorker {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}
	return &DownloadWorker{
		cfg:      cfg,
		tasks:    tasks,
		files:    files,
		timeline: &timelineRecorder{logger: log},
		logger:   log,
		now:      time.Now,
		jobs:     make(chan domain.Job, queueSize),
		done:     make(chan struct{}),
	}
}

func (w *DownloadWorker) SetTimelineRepo(repo ports.TimelineRepository) {
	w.timeline.repo = repo
}

// SetPublisher mirrors completed downloads through p. A timeout of zero leaves
// publishing unbounded.
func (w *DownloadWorker) SetPublisher(p ports.Publisher, timeout time.Duration) {
	w.publisher = p
	w.publishTimeout = timeout
}

// Start launches the consumer goroutine. Calling it twice is a no-op.
func (w *DownloadWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.run(runCtx)

	w.logger.Infow("download_worker_started", "queue_size", cap(w.jobs), "command", w.cfg.Command)
}

// Stop kills an in-flight subprocess, fails anything still queued and waits
// for the goroutine to exit.
func (w *DownloadWorker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	started := w.started
	cancel := w.cancel
	w.mu.Unlock()

	if !started {
		return
	}
	cancel()
	<-w.done
	w.logger.Infow("download_worker_stopped")
}

// Enqueue never blocks; a full queue is reported as ErrQueueFull.
func (w *DownloadWorker) Enqueue(job domain.Job) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return ErrWorkerStopped
	}

	select {
	case w.jobs <- job:
		w.logger.Infow("download_job_enqueued", "task_id", job.TaskID, "queue_depth", len(w.jobs))
		return nil
	default:
		return ErrQueueFull
	}
}

func (w *DownloadWorker) QueueDepth() int {
	return len(w.jobs)
}

func (w *DownloadWorker) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			w.abortQueued(ctx)
			return
		case job := <-w.jobs:
			if ctx.Err() != nil {
				w.finish(ctx, job, jobOutcome{err: ErrJobAborted})
				continue
			}
			w.process(ctx, job)
		}
	}
}

func (w *DownloadWorker) abortQueued(ctx context.Context) {
	for {
		select {
		case job := <-w.jobs:
			w.finish(ctx, job, jobOutcome{err: ErrJobAborted})
		default:
			return
		}
	}
}

func (w *DownloadWorker) process(ctx context.Context, job domain.Job) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Errorw("download_worker_panic",
				"task_id", job.TaskID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			w.finish(ctx, job, jobOutcome{err: fmt.Errorf("%w: internal error: %v", ErrProcessFailed, r)})
		}
	}()

	if _, err := w.tasks.Get(job.TaskID); err != nil {
		w.logger.Warnw("download_job_skipped", "task_id", job.TaskID, "error", err)
		return
	}

	outcome := w.runJob(ctx, job)
	w.finish(ctx, job, outcome)
}

func (w *DownloadWorker) runJob(ctx context.Context, job domain.Job) jobOutcome {
	if removed, err := w.files.Clear(); err != nil {
		w.logger.Warnw("download_dir_clear_failed", "task_id", job.TaskID, "error", err)
	} else if removed > 0 {
		w.logger.Infow("download_dir_cleared", "task_id", job.TaskID, "removed", removed)
	}

	status := domain.TaskStatusDownloading
	msg := "Download in progress..."
	w.updateTask(job.TaskID, domain.TaskUpdate{Status: &status, Message: &msg})
	w.timeline.record(ctx, domain.EventTypeDownloadStarted, domain.EventStatusPending, job.TaskID, "download started", nil)

	started := w.now()
	monitor := newOutputMonitor(w.now)

	proc, err := runner.Start(ctx, job.Command, w.cfg.KillGrace, monitor.Observe)
	if err != nil {
		return jobOutcome{err: fmt.Errorf("%w: %v", ErrProcessFailed, err)}
	}
	w.logger.Infow("download_process_started", "task_id", job.TaskID, "pid", proc.Pid())

	outcome := func(paths []string, err error) jobOutcome {
		snap := monitor.Snapshot()
		return jobOutcome{
			paths:      paths,
			err:        err,
			total:      snap.Total,
			downloaded: snap.Downloaded,
			duration:   w.now().Sub(started),
		}
	}
	terminate := func() runner.Result {
		proc.Terminate()
		return <-proc.Done()
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	var reported progressSnapshot
	for {
		select {
		case result := <-proc.Done():
			if ctx.Err() != nil {
				return outcome(nil, ErrJobAborted)
			}
			paths, err := w.evaluate(result, monitor)
			w.logger.Infow("download_process_exited",
				"task_id", job.TaskID,
				"exit_code", result.ExitCode,
				"duration", result.Duration,
			)
			return outcome(paths, err)

		case <-ctx.Done():
			terminate()
			return outcome(nil, ErrJobAborted)

		case <-ticker.C:
			completed, err := w.files.CountCompleted()
			if err != nil {
				w.logger.Warnw("download_dir_scan_failed", "task_id", job.TaskID, "error", err)
			}

			snap := monitor.Snapshot()
			if completed > snap.Downloaded {
				snap.Downloaded = completed
			}
			if snap.Total != reported.Total || snap.Downloaded != reported.Downloaded {
				w.publishProgress(job.TaskID, snap)
				reported = snap
			}

			if w.cfg.StopOnFirstFile && completed > 0 {
				w.logger.Infow("download_early_stop", "task_id", job.TaskID, "completed_files", completed)
				terminate()
				paths, err := w.files.CompletedPaths()
				if err == nil && len(paths) == 0 {
					err = ErrNoOutputFiles
				}
				return outcome(paths, err)
			}

			now := w.now()
			if now.Sub(snap.LastOutput) > w.cfg.IdleTimeout {
				w.logger.Warnw("download_idle_timeout", "task_id", job.TaskID, "idle_timeout", w.cfg.IdleTimeout)
				terminate()
				return outcome(nil, ErrIdleTimeout)
			}
			if now.Sub(started) > w.cfg.OverallTimeout {
				w.logger.Warnw("download_overall_timeout", "task_id", job.TaskID, "overall_timeout", w.cfg.OverallTimeout)
				terminate()
				return outcome(nil, ErrOverallTimeout)
			}
		}
	}
}

// evaluate applies the completion policy: the exit code decides, and a clean
// exit must also have left at least one finished audio file behind.
func (w *DownloadWorker) evaluate(result runner.Result, monitor *outputMonitor) ([]string, error) {
	if result.Err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessFailed, result.Err)
	}
	if result.ExitCode != 0 {
		detail := monitor.StderrTail()
		if detail == "" {
			detail = "unknown error"
		}
		return nil, fmt.Errorf("%w (exit code %d): %s", ErrProcessFailed, result.ExitCode, detail)
	}

	paths, err := w.files.CompletedPaths()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessFailed, err)
	}
	if len(paths) == 0 {
		return nil, ErrNoOutputFiles
	}
	return paths, nil
}

func (w *DownloadWorker) publishProgress(taskID string, snap progressSnapshot) {
	percent := progressPercent(snap.Total, snap.Downloaded)
	msg := progressMessage(snap.Total, snap.Downloaded)
	w.updateTask(taskID, domain.TaskUpdate{
		Message:          &msg,
		Progress:         &percent,
		TotalTracks:      &snap.Total,
		DownloadedTracks: &snap.Downloaded,
	})
}

func (w *DownloadWorker) finish(ctx context.Context, job domain.Job, outcome jobOutcome) {
	completedAt := w.now()

	if outcome.err != nil {
		status := domain.TaskStatusError
		msg := "Download failed: " + outcome.err.Error()
		errStr := outcome.err.Error()
		w.updateTask(job.TaskID, domain.TaskUpdate{
			Status:         &status,
			Message:        &msg,
			Error:          &errStr,
			CompletionTime: &completedAt,
		})
		w.logger.Errorw("download_failed", "task_id", job.TaskID, "duration", outcome.duration, "error", outcome.err)
		w.timeline.record(ctx, domain.EventTypeDownloadFailed, domain.EventStatusFailed, job.TaskID, outcome.err.Error(), map[string]any{
			"aborted": errors.Is(outcome.err, ErrJobAborted),
		})
		return
	}

	downloaded := outcome.downloaded
	if len(outcome.paths) > downloaded {
		downloaded = len(outcome.paths)
	}
	total := outcome.total
	if downloaded > total {
		total = downloaded
	}

	status := domain.TaskStatusCompleted
	msg := "Download completed!"
	progress := 100
	w.updateTask(job.TaskID, domain.TaskUpdate{
		Status:           &status,
		Message:          &msg,
		Progress:         &progress,
		TotalTracks:      &total,
		DownloadedTracks: &downloaded,
		CompletionTime:   &completedAt,
	})
	w.logger.Infow("download_completed", "task_id", job.TaskID, "files", len(outcome.paths), "duration", outcome.duration)
	w.timeline.record(ctx, domain.EventTypeDownloadCompleted, domain.EventStatusSuccess, job.TaskID, "download completed", map[string]any{
		"files":       len(outcome.paths),
		"duration_ms": outcome.duration.Milliseconds(),
	})

	w.publish(ctx, job.TaskID, outcome.paths)
}

// publish failures are logged only; the task stays completed.
func (w *DownloadWorker) publish(ctx context.Context, taskID string, paths []string) {
	if w.publisher == nil || len(paths) == 0 {
		return
	}

	publishCtx := ctx
	if w.publishTimeout > 0 {
		var cancel context.CancelFunc
		publishCtx, cancel = context.WithTimeout(ctx, w.publishTimeout)
		defer cancel()
	}

	uploaded, err := w.publisher.Publish(publishCtx, paths)
	if err != nil {
		w.logger.Errorw("download_publish_failed", "task_id", taskID, "uploaded", uploaded, "error", err)
		w.timeline.record(ctx, domain.EventTypeDownloadPublished, domain.EventStatusFailed, taskID, err.Error(), map[string]any{
			"uploaded": uploaded,
		})
		return
	}

	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	w.logger.Infow("download_published", "task_id", taskID, "uploaded", uploaded)
	w.timeline.record(ctx, domain.EventTypeDownloadPublished, domain.EventStatusSuccess, taskID, "files published", map[string]any{
		"uploaded": uploaded,
		"files":    names,
	})
}

// updateTask drops updates for tasks that were evicted mid-flight.
func (w *DownloadWorker) updateTask(taskID string, update domain.TaskUpdate) {
	if err := w.tasks.Update(taskID, update); err != nil {
		w.logger.Warnw("task_update_dropped", "task_id", taskID, "error", err)
	}
}
