package services

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/trackdrop/backend/internal/infrastructure/runner"
)

// Output markers are heuristics over the downloader's human-readable output.
// When its wording changes, progress reporting degrades but jobs still finish.
var (
	foundTracksPattern = regexp.MustCompile(`(?i)\bfound\s+(\d+)\s+(?:tracks?|songs?)\b`)
	downloadedPattern  = regexp.MustCompile(`(?i)^downloaded\b`)
)

const stderrTailLines = 20

// outputMonitor accumulates what the subprocess has printed so far.
type outputMonitor struct {
	mu         sync.Mutex
	now        func() time.Time
	lastOutput time.Time
	total      int
	downloaded int
	lastLine   string
	stderrTail []string
}

type progressSnapshot struct {
	Total      int
	Downloaded int
	LastLine   string
	LastOutput time.Time
}

func newOutputMonitor(now func() time.Time) *outputMonitor {
	return &outputMonitor{now: now, lastOutput: now()}
}

// Observe is the runner.LineFunc fed with every line of output.
func (m *outputMonitor) Observe(stream runner.Stream, line string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastOutput = m.now()
	m.lastLine = line

	if stream == runner.StreamStderr {
		m.stderrTail = append(m.stderrTail, line)
		if len(m.stderrTail) > stderrTailLines {
			m.stderrTail = m.stderrTail[len(m.stderrTail)-stderrTailLines:]
		}
	}

	if match := foundTracksPattern.FindStringSubmatch(line); match != nil {
		if n, err := strconv.Atoi(match[1]); err == nil && n > m.total {
			m.total = n
		}
	}
	if downloadedPattern.MatchString(line) {
		m.downloaded++
	}
}

func (m *outputMonitor) Snapshot() progressSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return progressSnapshot{
		Total:      m.total,
		Downloaded: m.downloaded,
		LastLine:   m.lastLine,
		LastOutput: m.lastOutput,
	}
}

func (m *outputMonitor) StderrTail() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return strings.Join(m.stderrTail, "\n")
}

// progressPercent never reports 100 for a running job; only completion does.
func progressPercent(total, downloaded int) int {
	if total <= 0 {
		return 0
	}
	if downloaded >= total {
		return 99
	}
	return downloaded * 100 / total
}

func progressMessage(total, downloaded int) string {
	switch {
	case total > 0:
		return "Downloaded " + strconv.Itoa(downloaded) + " of " + strconv.Itoa(total) + " tracks"
	case downloaded > 0:
		return "Downloaded " + strconv.Itoa(downloaded) + " tracks"
	default:
		return "Download in progress..."
	}
}
