package services

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/trackdrop/backend/internal/domain"
	"github.com/trackdrop/backend/internal/infrastructure/logger"
)

var audioExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".ogg":  true,
	".opus": true,
	".flac": true,
	".wav":  true,
}

// Suffixes the downloader leaves next to a file that is still being written.
var inProgressMarkers = []string{".part", ".tmp", ".temp", ".ytdl", ".spotdl-cache"}

func IsAudioFile(name string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(name))]
}

type FileStore struct {
	root   string
	maxAge time.Duration
	logger *logger.Logger
	now    func() time.Time
}

// NewFileStore creates the directory when missing.
func NewFileStore(root string, maxAge time.Duration, log *logger.Logger) (*FileStore, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid download directory: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}
	return &FileStore{
		root:   absRoot,
		maxAge: maxAge,
		logger: log,
		now:    time.Now,
	}, nil
}

func (s *FileStore) Root() string {
	return s.root
}

// List returns the audio files in the store, newest first.
func (s *FileStore) List() ([]domain.StoredFile, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.StoredFile{}, nil
		}
		return nil, fmt.Errorf("failed to read download directory: %w", err)
	}

	now := s.now()
	files := make([]domain.StoredFile, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !IsAudioFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			s.logger.Warnw("file_store_stat_failed", "file", entry.Name(), "error", err)
			continue
		}

		name := entry.Name()
		expiresAt := info.ModTime().Add(s.maxAge)
		expiresIn := int64(expiresAt.Sub(now).Seconds())
		if expiresIn < 0 {
			expiresIn = 0
		}

		files = append(files, domain.StoredFile{
			Filename:    url.PathEscape(name),
			DisplayName: strings.TrimSuffix(name, filepath.Ext(name)),
			Size:        humanize.Bytes(uint64(info.Size())),
			SizeBytes:   info.Size(),
			ModTime:     info.ModTime(),
			ExpiresAt:   expiresAt,
			ExpiresIn:   expiresIn,
		})
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})
	return files, nil
}

// Resolve maps a requested (possibly URL-encoded) file name to an absolute path
// inside the store. Names carrying directory components are rejected.
func (s *FileStore) Resolve(requested string) (string, error) {
	name, err := url.PathUnescape(requested)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPathTraversal, err)
	}

	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", ErrPathTraversal
	}

	abs, err := filepath.Abs(filepath.Join(s.root, filepath.Base(name)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPathTraversal, err)
	}

	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}

	return abs, nil
}

// PurgeExpired deletes regular files older than maxAge. Failures on individual
// files are logged and skipped.
func (s *FileStore) PurgeExpired(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read download directory: %w", err)
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			s.logger.Warnw("file_purge_stat_failed", "file", entry.Name(), "error", err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.root, entry.Name())); err != nil {
			s.logger.Errorw("file_purge_remove_failed", "file", entry.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Clear removes every regular file in the store.
func (s *FileStore) Clear() (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read download directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if err := os.Remove(filepath.Join(s.root, entry.Name())); err != nil {
			s.logger.Errorw("file_clear_remove_failed", "file", entry.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// CountCompleted counts audio files that have no in-progress marker next to them.
func (s *FileStore) CountCompleted() (int, error) {
	paths, err := s.CompletedPaths()
	return len(paths), err
}

// CompletedPaths returns absolute paths of the audio files that are fully written.
func (s *FileStore) CompletedPaths() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read download directory: %w", err)
	}

	names := make(map[string]bool, len(entries))
	for _, entry := range entries {
		names[entry.Name()] = true
	}

	var paths []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || !IsAudioFile(name) {
			continue
		}
		partial := false
		for _, marker := range inProgressMarkers {
			if names[name+marker] {
				partial = true
				break
			}
		}
		if !partial {
			paths = append(paths, filepath.Join(s.root, name))
		}
	}
	return paths, nil
}
