package domain

// Download timeline event types
const (
	EventTypeDownloadQueued    = "DOWNLOAD_QUEUED"
	EventTypeDownloadStarted   = "DOWNLOAD_STARTED"
	EventTypeDownloadCompleted = "DOWNLOAD_COMPLETED"
	EventTypeDownloadFailed    = "DOWNLOAD_FAILED"
	EventTypeDownloadPublished = "DOWNLOAD_PUBLISHED"
	EventTypeFilesPurged       = "FILES_PURGED"
)

const ResourceTypeTask = "task"
