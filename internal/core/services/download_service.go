package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/trackdrop/backend/internal/config"
	"github.com/trackdrop/backend/internal/core/ports"
	"github.com/trackdrop/backend/internal/domain"
	"github.com/trackdrop/backend/internal/infrastructure/logger"
)

var bitratePattern = regexp.MustCompile(`^(\d{1,4})k?$`)

type DownloadService struct {
	cfg      config.DownloadsConfig
	command  []string
	tasks    ports.TaskRegistry
	files    ports.FileStore
	queue    ports.JobQueue
	timeline *timelineRecorder
	logger   *logger.Logger
	newID    func() string
}

func NewDownloadService(
	cfg config.DownloadsConfig,
	command []string,
	tasks ports.TaskRegistry,
	files ports.FileStore,
	queue ports.JobQueue,
	log *logger.Logger,
) *DownloadService {
	return &DownloadService{
		cfg:      cfg,
		command:  command,
		tasks:    tasks,
		files:    files,
		queue:    queue,
		timeline: &timelineRecorder{logger: log},
		logger:   log,
		newID:    uuid.NewString,
	}
}

func (s *DownloadService) SetTimelineRepo(repo ports.TimelineRepository) {
	s.timeline.repo = repo
}

// Submit validates the request, registers a task and queues the job. Nothing is
// registered when validation fails.
func (s *DownloadService) Submit(ctx context.Context, input ports.SubmitDownloadInput) (*domain.Task, error) {
	target, err := s.validateURL(input.URL)
	if err != nil {
		return nil, err
	}
	format, err := normalizeFormat(input.Format, s.cfg.DefaultFormat)
	if err != nil {
		return nil, err
	}
	bitrate, err := normalizeBitrate(input.Bitrate, s.cfg.DefaultBitrate)
	if err != nil {
		return nil, err
	}

	id := s.newID()
	task, err := s.tasks.Create(id, target, format, bitrate)
	if err != nil {
		return nil, fmt.Errorf("failed to register task: %w", err)
	}

	job := domain.Job{
		TaskID:  id,
		Command: BuildCommand(s.command, format, bitrate, s.files.Root(), target),
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.tasks.Delete(id)
		s.logger.Errorw("download_enqueue_failed", "task_id", id, "error", err)
		return nil, err
	}

	s.logger.Infow("download_submitted",
		"task_id", id,
		"url", target,
		"format", format,
		"bitrate", bitrate,
		"queue_depth", s.queue.QueueDepth(),
	)
	s.timeline.record(ctx, domain.EventTypeDownloadQueued, domain.EventStatusPending, id, "download queued", map[string]any{
		"url":     target,
		"format":  format,
		"bitrate": bitrate,
	})

	return task, nil
}

// GetProgress attaches the current file listing once the task has completed.
func (s *DownloadService) GetProgress(ctx context.Context, taskID string) (*ports.TaskProgress, error) {
	task, err := s.tasks.Get(taskID)
	if err != nil {
		return nil, err
	}

	progress := &ports.TaskProgress{Task: task}
	if task.Status == domain.TaskStatusCompleted {
		files, err := s.files.List()
		if err != nil {
			s.logger.Warnw("progress_file_list_failed", "task_id", taskID, "error", err)
		}
		if files == nil {
			files = []domain.StoredFile{}
		}
		progress.Files = files
	}
	return progress, nil
}

func (s *DownloadService) ListFiles(ctx context.Context) ([]domain.StoredFile, error) {
	return s.files.List()
}

// ResolveFile returns the absolute path of an existing regular file in the store.
func (s *DownloadService) ResolveFile(ctx context.Context, filename string) (string, error) {
	path, err := s.files.Resolve(filename)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrFileNotFound
		}
		return "", fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", ErrFileNotFound
	}
	return path, nil
}

func (s *DownloadService) validateURL(raw string) (string, error) {
	target := strings.TrimSpace(raw)
	if target == "" {
		return "", ErrMissingURL
	}

	allowed := false
	for _, prefix := range s.cfg.AllowedURLPrefixes {
		if strings.HasPrefix(target, prefix) {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", ErrInvalidURL
	}

	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" || strings.ContainsAny(target, " \t\r\n") {
		return "", ErrInvalidURL
	}
	return target, nil
}

func normalizeFormat(format, fallback string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = fallback
	}
	if !audioExtensions["."+format] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return format, nil
}

// normalizeBitrate appends the "k" suffix the downloader expects.
func normalizeBitrate(bitrate, fallback string) (string, error) {
	bitrate = strings.ToLower(strings.TrimSpace(bitrate))
	if bitrate == "" {
		bitrate = fallback
	}
	match := bitratePattern.FindStringSubmatch(bitrate)
	if match == nil || strings.TrimLeft(match[1], "0") == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidBitrate, bitrate)
	}
	return match[1] + "k", nil
}

// BuildCommand appends the per-job arguments to the configured downloader command.
func BuildCommand(base []string, format, bitrate, outputDir, target string) []string {
	argv := make([]string, 0, len(base)+7)
	argv = append(argv, base...)
	return append(argv,
		"--format", format,
		"--bitrate", bitrate,
		"--output", outputDir,
		target,
	)
}
