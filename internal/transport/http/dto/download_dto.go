package dto

import (
	"strings"

	"github.com/trackdrop/backend/internal/domain"
)

type DownloadRequest struct {
	URL     string `json:"url"`
	Format  string `json:"format,omitempty"`
	Bitrate string `json:"bitrate,omitempty"`
}

// Validate only checks presence; URL shape, format and bitrate are checked by
// the download service.
func (r *DownloadRequest) Validate() []string {
	var errors []string
	if strings.TrimSpace(r.URL) == "" {
		errors = append(errors, "url is required")
	}
	return errors
}

type DownloadStartedResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

type FileListResponse struct {
	Files []domain.StoredFile `json:"files"`
	Count int                 `json:"count"`
}

type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}
