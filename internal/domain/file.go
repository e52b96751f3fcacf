package domain

import "time"

// StoredFile describes an audio file in the download directory. Raw paths are
// never exposed.
type StoredFile struct {
	Filename    string    `json:"filename"`
	DisplayName string    `json:"display_name"`
	Size        string    `json:"size"`
	SizeBytes   int64     `json:"size_bytes"`
	ModTime     time.Time `json:"mod_time"`
	ExpiresAt   time.Time `json:"expires_at"`
	ExpiresIn   int64     `json:"expires_in"`
}
