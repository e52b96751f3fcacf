package services

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trackdrop/backend/internal/config"
	"github.com/trackdrop/backend/internal/core/ports"
	"github.com/trackdrop/backend/internal/domain"
	"github.com/trackdrop/backend/internal/infrastructure/db"
	"github.com/trackdrop/backend/internal/infrastructure/logger"
)

const testURL = "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M"

type fakeQueue struct {
	mu   sync.Mutex
	jobs []domain.Job
	err  error
}

func (q *fakeQueue) Enqueue(job domain.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) QueueDepth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func testDownloadsConfig(dir string) config.DownloadsConfig {
	return config.DownloadsConfig{
		Dir:                dir,
		MaxFileAge:         24 * time.Hour,
		CleanupInterval:    time.Hour,
		AllowedURLPrefixes: []string{"https://open.spotify.com/"},
		DefaultFormat:      "mp3",
		DefaultBitrate:     "320k",
	}
}

type serviceFixture struct {
	service  *DownloadService
	tasks    *TaskService
	files    *FileStore
	queue    *fakeQueue
	timeline ports.TimelineRepository
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	files := newTestFileStore(t, 24*time.Hour)
	tasks := NewTaskService(time.Minute)
	queue := &fakeQueue{}
	timeline := db.NewMemoryTimelineRepository(0, logger.NewNop())

	service := NewDownloadService(testDownloadsConfig(files.Root()), []string{"spotdl"}, tasks, files, queue, logger.NewNop())
	service.SetTimelineRepo(timeline)
	return &serviceFixture{service: service, tasks: tasks, files: files, queue: queue, timeline: timeline}
}

func TestSubmitQueuesJob(t *testing.T) {
	f := newServiceFixture(t)

	task, err := f.service.Submit(context.Background(), ports.SubmitDownloadInput{URL: testURL})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusStarting, task.Status)
	assert.Equal(t, "mp3", task.Format)
	assert.Equal(t, "320k", task.Bitrate)

	stored, err := f.tasks.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, stored.ID)

	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, task.ID, f.queue.jobs[0].TaskID)
	assert.Equal(t, []string{
		"spotdl",
		"--format", "mp3",
		"--bitrate", "320k",
		"--output", f.files.Root(),
		testURL,
	}, f.queue.jobs[0].Command)

	events, err := f.timeline.GetByResource(context.Background(), domain.ResourceTypeTask, task.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTypeDownloadQueued, events[0].Type)
}

func TestSubmitNormalizesOptions(t *testing.T) {
	f := newServiceFixture(t)

	task, err := f.service.Submit(context.Background(), ports.SubmitDownloadInput{
		URL:     "  " + testURL + " ",
		Format:  "FLAC",
		Bitrate: "192",
	})
	require.NoError(t, err)
	assert.Equal(t, testURL, task.URL)
	assert.Equal(t, "flac", task.Format)
	assert.Equal(t, "192k", task.Bitrate)
}

func TestSubmitRejectsWithoutCreatingTask(t *testing.T) {
	f := newServiceFixture(t)

	cases := []struct {
		name  string
		input ports.SubmitDownloadInput
		want  error
	}{
		{"missing url", ports.SubmitDownloadInput{URL: "  "}, ErrMissingURL},
		{"wrong host", ports.SubmitDownloadInput{URL: "https://example.com/track/1"}, ErrInvalidURL},
		{"plain http", ports.SubmitDownloadInput{URL: "http://open.spotify.com/track/1"}, ErrInvalidURL},
		{"embedded space", ports.SubmitDownloadInput{URL: "https://open.spotify.com/track/1 --evil"}, ErrInvalidURL},
		{"bad format", ports.SubmitDownloadInput{URL: testURL, Format: "exe"}, ErrUnsupportedFormat},
		{"bad bitrate", ports.SubmitDownloadInput{URL: testURL, Bitrate: "loud"}, ErrInvalidBitrate},
		{"zero bitrate", ports.SubmitDownloadInput{URL: testURL, Bitrate: "0k"}, ErrInvalidBitrate},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task, err := f.service.Submit(context.Background(), tc.input)
			assert.ErrorIs(t, err, tc.want)
			assert.Nil(t, task)
		})
	}

	assert.Equal(t, 0, f.tasks.Len())
	assert.Empty(t, f.queue.jobs)
}

func TestSubmitQueueFullDropsTask(t *testing.T) {
	f := newServiceFixture(t)
	f.queue.err = ErrQueueFull

	_, err := f.service.Submit(context.Background(), ports.SubmitDownloadInput{URL: testURL})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 0, f.tasks.Len())
}

func TestSubmitIDsAreUnique(t *testing.T) {
	f := newServiceFixture(t)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		task, err := f.service.Submit(context.Background(), ports.SubmitDownloadInput{URL: testURL})
		require.NoError(t, err)
		assert.False(t, seen[task.ID], "duplicate id %s", task.ID)
		seen[task.ID] = true

		progress, err := f.service.GetProgress(context.Background(), task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusStarting, progress.Status)
	}
}

func TestGetProgressAttachesFilesWhenCompleted(t *testing.T) {
	f := newServiceFixture(t)
	writeFile(t, f.files.Root(), "song.mp3", time.Now())

	task, err := f.service.Submit(context.Background(), ports.SubmitDownloadInput{URL: testURL})
	require.NoError(t, err)

	progress, err := f.service.GetProgress(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Nil(t, progress.Files)

	status := domain.TaskStatusCompleted
	now := time.Now()
	require.NoError(t, f.tasks.Update(task.ID, domain.TaskUpdate{Status: &status, CompletionTime: &now}))

	progress, err = f.service.GetProgress(context.Background(), task.ID)
	require.NoError(t, err)
	require.Len(t, progress.Files, 1)
	assert.Equal(t, "song.mp3", progress.Files[0].Filename)

	_, err = f.files.Clear()
	require.NoError(t, err)
	progress, err = f.service.GetProgress(context.Background(), task.ID)
	require.NoError(t, err)
	assert.NotNil(t, progress.Files)
	assert.Empty(t, progress.Files)

	_, err = f.service.GetProgress(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestResolveFile(t *testing.T) {
	f := newServiceFixture(t)
	writeFile(t, f.files.Root(), "My Song.mp3", time.Now())
	require.NoError(t, os.Mkdir(filepath.Join(f.files.Root(), "folder.mp3"), 0o755))

	path, err := f.service.ResolveFile(context.Background(), "My%20Song.mp3")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.files.Root(), "My Song.mp3"), path)

	_, err = f.service.ResolveFile(context.Background(), "missing.mp3")
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = f.service.ResolveFile(context.Background(), "folder.mp3")
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = f.service.ResolveFile(context.Background(), "../../etc/passwd")
	assert.ErrorIs(t, err, ErrPathTraversal)
}

func TestNormalizeBitrate(t *testing.T) {
	for in, want := range map[string]string{
		"":      "320k",
		"128":   "128k",
		"128k":  "128k",
		" 96K ": "96k",
	} {
		got, err := normalizeBitrate(in, "320k")
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"k", "abc", "12345k", "-1", "1.5k"} {
		_, err := normalizeBitrate(bad, "320k")
		assert.ErrorIs(t, err, ErrInvalidBitrate, bad)
	}
}
