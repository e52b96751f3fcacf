package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trackdrop/backend/internal/infrastructure/logger"
)

func newTestFileStore(t *testing.T, maxAge time.Duration) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir(), maxAge, logger.NewNop())
	require.NoError(t, err)
	return store
}

func writeFile(t *testing.T, dir, name string, modTime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 2048)), 0o644))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
	return path
}

func TestFileStoreCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "downloads")
	store, err := NewFileStore(root, time.Hour, logger.NewNop())
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(store.Root()))
	assert.DirExists(t, root)
}

func TestFileStoreResolveRejectsTraversal(t *testing.T) {
	store := newTestFileStore(t, time.Hour)

	for _, name := range []string{
		"../../etc/passwd",
		"..%2F..%2Fetc%2Fpasswd",
		"/etc/passwd",
		"sub/song.mp3",
		`..\..\windows`,
		"..",
		".",
		"",
		"bad%00name.mp3",
		"%zz",
	} {
		path, err := store.Resolve(name)
		assert.ErrorIs(t, err, ErrPathTraversal, name)
		assert.Empty(t, path, name)
	}
}

func TestFileStoreResolveInsideRoot(t *testing.T) {
	store := newTestFileStore(t, time.Hour)

	path, err := store.Resolve("Artist%20-%20Song.mp3")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Root(), "Artist - Song.mp3"), path)

	path, err = store.Resolve("..hidden.mp3")
	require.NoError(t, err)
	assert.Equal(t, store.Root(), filepath.Dir(path))
}

func TestFileStoreListFiltersAndSorts(t *testing.T) {
	store := newTestFileStore(t, 24*time.Hour)
	now := time.Now()

	writeFile(t, store.Root(), "old.mp3", now.Add(-2*time.Hour))
	writeFile(t, store.Root(), "new.FLAC", now.Add(-time.Minute))
	writeFile(t, store.Root(), "middle song.m4a", now.Add(-time.Hour))
	writeFile(t, store.Root(), "notes.txt", now)
	writeFile(t, store.Root(), "partial.mp3.part", now)
	require.NoError(t, os.Mkdir(filepath.Join(store.Root(), "dir.mp3"), 0o755))

	files, err := store.List()
	require.NoError(t, err)
	require.Len(t, files, 3)

	assert.Equal(t, "new.FLAC", files[0].Filename)
	assert.Equal(t, "middle%20song.m4a", files[1].Filename)
	assert.Equal(t, "middle song", files[1].DisplayName)
	assert.Equal(t, "old.mp3", files[2].Filename)
	assert.Equal(t, "2.0 kB", files[2].Size)
	assert.Equal(t, int64(2048), files[2].SizeBytes)

	for _, f := range files {
		assert.NotContains(t, f.Filename, store.Root())
		assert.Greater(t, f.ExpiresIn, int64(0))
	}
}

func TestFileStoreExpiryCountsDown(t *testing.T) {
	store := newTestFileStore(t, time.Hour)
	modTime := time.Now().Add(-10 * time.Minute)
	writeFile(t, store.Root(), "song.mp3", modTime)

	clock := &fakeClock{now: modTime.Add(10 * time.Minute)}
	store.now = clock.Now

	first, err := store.List()
	require.NoError(t, err)
	clock.Advance(30 * time.Second)
	second, err := store.List()
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Less(t, second[0].ExpiresIn, first[0].ExpiresIn)
	assert.Equal(t, first[0].ExpiresAt, second[0].ExpiresAt)

	clock.Advance(2 * time.Hour)
	expired, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, int64(0), expired[0].ExpiresIn)
}

func TestFileStorePurgeExpired(t *testing.T) {
	store := newTestFileStore(t, time.Hour)
	now := time.Now()

	oldPath := writeFile(t, store.Root(), "old.mp3", now.Add(-3*time.Hour))
	oldJunk := writeFile(t, store.Root(), "old.txt", now.Add(-3*time.Hour))
	freshPath := writeFile(t, store.Root(), "fresh.mp3", now)

	removed, err := store.PurgeExpired(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.NoFileExists(t, oldPath)
	assert.NoFileExists(t, oldJunk)
	assert.FileExists(t, freshPath)

	files, err := store.List()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "fresh.mp3", files[0].Filename)
}

func TestFileStoreClear(t *testing.T) {
	store := newTestFileStore(t, time.Hour)
	writeFile(t, store.Root(), "a.mp3", time.Now())
	writeFile(t, store.Root(), "b.txt", time.Now())
	require.NoError(t, os.Mkdir(filepath.Join(store.Root(), "keep"), 0o755))

	removed, err := store.Clear()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.DirExists(t, filepath.Join(store.Root(), "keep"))
}

func TestFileStoreCountCompleted(t *testing.T) {
	store := newTestFileStore(t, time.Hour)
	writeFile(t, store.Root(), "done.mp3", time.Now())
	writeFile(t, store.Root(), "busy.mp3", time.Now())
	writeFile(t, store.Root(), "busy.mp3.part", time.Now())
	writeFile(t, store.Root(), "other.opus.tmp", time.Now())

	n, err := store.CountCompleted()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	paths, err := store.CompletedPaths()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(store.Root(), "done.mp3")}, paths)
}
