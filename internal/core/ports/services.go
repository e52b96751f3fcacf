package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/trackdrop/backend/internal/domain"
)

// TaskRegistry is the single source of truth for task state.
type TaskRegistry interface {
	Create(id, url, format, bitrate string) (*domain.Task, error)
	Update(id string, update domain.TaskUpdate) error
	Get(id string) (*domain.Task, error)
	Delete(id string)
	EvictExpired(now time.Time) int
}

// FileStore wraps the download directory.
type FileStore interface {
	Root() string
	List() ([]domain.StoredFile, error)
	Resolve(requested string) (string, error)
	PurgeExpired(maxAge time.Duration) (int, error)
	Clear() (int, error)
	CountCompleted() (int, error)
	CompletedPaths() ([]string, error)
}

// JobQueue accepts work for the download worker.
type JobQueue interface {
	Enqueue(job domain.Job) error
	QueueDepth() int
}

// DownloadService orchestrates submission and polling on behalf of handlers.
type DownloadService interface {
	Submit(ctx context.Context, input SubmitDownloadInput) (*domain.Task, error)
	GetProgress(ctx context.Context, taskID string) (*TaskProgress, error)
	ListFiles(ctx context.Context) ([]domain.StoredFile, error)
	ResolveFile(ctx context.Context, filename string) (string, error)
}

type SubmitDownloadInput struct {
	URL     string
	Format  string
	Bitrate string
}

// TaskProgress is a task snapshot plus the current file listing once completed.
// A nil Files omits the key; a non-nil empty listing is sent as [].
type TaskProgress struct {
	*domain.Task
	Files []domain.StoredFile `json:"files,omitempty"`
}

func (p TaskProgress) MarshalJSON() ([]byte, error) {
	type view struct {
		*domain.Task
		Files *[]domain.StoredFile `json:"files,omitempty"`
	}
	v := view{Task: p.Task}
	if p.Files != nil {
		v.Files = &p.Files
	}
	return json.Marshal(v)
}

// Publisher mirrors completed downloads to another location.
type Publisher interface {
	Publish(ctx context.Context, localPaths []string) (int, error)
}
