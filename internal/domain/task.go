package domain

import "time"

// TaskStatus is the lifecycle state of a download task.
type TaskStatus string

const (
	TaskStatusStarting    TaskStatus = "starting"
	TaskStatusDownloading TaskStatus = "downloading"
	TaskStatusCompleted   TaskStatus = "completed"
	TaskStatusError       TaskStatus = "error"
)

func (s TaskStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions can happen.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusError
}

// Task is one user-initiated download request and its progress state.
type Task struct {
	ID               string     `json:"id"`
	URL              string     `json:"url"`
	Format           string     `json:"format"`
	Bitrate          string     `json:"bitrate"`
	Status           TaskStatus `json:"status"`
	Message          string     `json:"message"`
	Progress         int        `json:"progress"`
	TotalTracks      int        `json:"total_tracks"`
	DownloadedTracks int        `json:"downloaded_tracks"`
	Error            *string    `json:"error"`
	CompletionTime   *time.Time `json:"completion_time"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TaskUpdate carries the fields to merge into a task; nil fields are left alone.
type TaskUpdate struct {
	Status           *TaskStatus
	Message          *string
	Progress         *int
	TotalTracks      *int
	DownloadedTracks *int
	Error            *string
	CompletionTime   *time.Time
}

// Job is the work item handed to the download worker.
type Job struct {
	TaskID  string
	Command []string
}
