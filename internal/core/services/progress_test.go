package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/trackdrop/backend/internal/infrastructure/runner"
)

func TestOutputMonitorMarkers(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	m := newOutputMonitor(clock.Now)

	clock.Advance(time.Second)
	m.Observe(runner.StreamStdout, "Processing query: https://open.spotify.com/playlist/abc")
	m.Observe(runner.StreamStdout, "Found 12 songs in Road Trip (Playlist)")
	m.Observe(runner.StreamStdout, `Downloaded "Artist - One": https://music.youtube.com/watch?v=1`)
	m.Observe(runner.StreamStdout, `Downloaded "Artist - Two": https://music.youtube.com/watch?v=2`)
	m.Observe(runner.StreamStdout, "Skipping Artist - Three (file already exists)")

	snap := m.Snapshot()
	assert.Equal(t, 12, snap.Total)
	assert.Equal(t, 2, snap.Downloaded)
	assert.Equal(t, clock.Now(), snap.LastOutput)
	assert.Contains(t, snap.LastLine, "Skipping")
}

func TestOutputMonitorFoundTracksVariants(t *testing.T) {
	m := newOutputMonitor(time.Now)
	m.Observe(runner.StreamStdout, "found 1 track")
	assert.Equal(t, 1, m.Snapshot().Total)

	m.Observe(runner.StreamStdout, "Found 30 tracks")
	assert.Equal(t, 30, m.Snapshot().Total)

	// a smaller count later does not shrink the total
	m.Observe(runner.StreamStdout, "Found 3 songs")
	assert.Equal(t, 30, m.Snapshot().Total)

	m.Observe(runner.StreamStdout, "Nothing downloaded yet")
	assert.Equal(t, 0, m.Snapshot().Downloaded)
}

func TestOutputMonitorStderrTail(t *testing.T) {
	m := newOutputMonitor(time.Now)
	for i := 0; i < stderrTailLines+5; i++ {
		m.Observe(runner.StreamStderr, fmt.Sprintf("err %d", i))
	}
	m.Observe(runner.StreamStdout, "stdout is not captured")

	tail := strings.Split(m.StderrTail(), "\n")
	assert.Len(t, tail, stderrTailLines)
	assert.Equal(t, "err 5", tail[0])
	assert.Equal(t, fmt.Sprintf("err %d", stderrTailLines+4), tail[len(tail)-1])
}

func TestProgressPercent(t *testing.T) {
	assert.Equal(t, 0, progressPercent(0, 3))
	assert.Equal(t, 25, progressPercent(4, 1))
	assert.Equal(t, 99, progressPercent(4, 4))
	assert.Equal(t, 99, progressPercent(4, 9))
}

func TestProgressMessage(t *testing.T) {
	assert.Equal(t, "Download in progress...", progressMessage(0, 0))
	assert.Equal(t, "Downloaded 2 tracks", progressMessage(0, 2))
	assert.Equal(t, "Downloaded 2 of 5 tracks", progressMessage(5, 2))
}
