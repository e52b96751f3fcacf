package services

import (
	"sync"
	"time"

	"github.com/trackdrop/backend/internal/domain"
)

// TaskService keeps every task record in memory. Records are lost on restart.
type TaskService struct {
	tasks       map[string]*domain.Task
	gracePeriod time.Duration
	now         func() time.Time
	mu          sync.RWMutex
}

func NewTaskService(gracePeriod time.Duration) *TaskService {
	return &TaskService{
		tasks:       make(map[string]*domain.Task),
		gracePeriod: gracePeriod,
		now:         time.Now,
	}
}

func (s *TaskService) Create(id, url, format, bitrate string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[id]; exists {
		return nil, ErrTaskExists
	}

	now := s.now()
	task := &domain.Task{
		ID:        id,
		URL:       url,
		Format:    format,
		Bitrate:   bitrate,
		Status:    domain.TaskStatusStarting,
		Progress:  0,
		Message:   "Initializing download...",
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.tasks[id] = task
	taskCopy := *task
	return &taskCopy, nil
}

func (s *TaskService) Update(id string, update domain.TaskUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[id]
	if !exists {
		return ErrTaskNotFound
	}

	if update.Status != nil {
		task.Status = *update.Status
	}
	if update.Message != nil {
		task.Message = *update.Message
	}
	if update.Progress != nil {
		task.Progress = clampPercent(*update.Progress)
	}
	if update.TotalTracks != nil {
		task.TotalTracks = *update.TotalTracks
	}
	if update.DownloadedTracks != nil {
		task.DownloadedTracks = *update.DownloadedTracks
	}
	if update.Error != nil {
		errStr := *update.Error
		task.Error = &errStr
	}
	if update.CompletionTime != nil {
		completed := *update.CompletionTime
		task.CompletionTime = &completed
	}
	task.UpdatedAt = s.now()

	return nil
}

// Get returns a copy of the task. Terminal tasks whose grace period has passed
// are removed here as well, so they are never served stale.
func (s *TaskService) Get(id string) (*domain.Task, error) {
	s.mu.RLock()
	task, exists := s.tasks[id]
	if !exists {
		s.mu.RUnlock()
		return nil, ErrTaskNotFound
	}
	expired := s.expired(task, s.now())
	taskCopy := copyTask(task)
	s.mu.RUnlock()

	if expired {
		s.Delete(id)
		return nil, ErrTaskNotFound
	}
	return taskCopy, nil
}

func (s *TaskService) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
}

// EvictExpired drops terminal tasks whose completion is older than the grace period.
func (s *TaskService) EvictExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, task := range s.tasks {
		if s.expired(task, now) {
			delete(s.tasks, id)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of tracked tasks.
func (s *TaskService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

func (s *TaskService) expired(task *domain.Task, now time.Time) bool {
	if !task.Status.IsTerminal() {
		return false
	}
	finished := task.UpdatedAt
	if task.CompletionTime != nil {
		finished = *task.CompletionTime
	}
	return now.Sub(finished) > s.gracePeriod
}

func copyTask(task *domain.Task) *domain.Task {
	taskCopy := *task
	if task.Error != nil {
		errStr := *task.Error
		taskCopy.Error = &errStr
	}
	if task.CompletionTime != nil {
		completed := *task.CompletionTime
		taskCopy.CompletionTime = &completed
	}
	return &taskCopy
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
