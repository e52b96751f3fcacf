package runner

import (
	"bytes"
	"strings"
	"sync"
)

// Lines longer than this are delivered in pieces.
const maxLineLength = 64 * 1024

// lineWriter splits written bytes on '\n' and '\r' so progress bars that redraw
// with carriage returns still produce separate lines.
type lineWriter struct {
	mu     sync.Mutex
	stream Stream
	buf    bytes.Buffer
	onLine LineFunc
}

func newLineWriter(stream Stream, onLine LineFunc) *lineWriter {
	return &lineWriter{stream: stream, onLine: onLine}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, b := range p {
		if b == '\n' || b == '\r' {
			w.emit()
			continue
		}
		w.buf.WriteByte(b)
		if w.buf.Len() >= maxLineLength {
			w.emit()
		}
	}
	return len(p), nil
}

// Flush emits a trailing line that had no terminator.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.emit()
}

func (w *lineWriter) emit() {
	if w.buf.Len() == 0 {
		return
	}
	line := strings.TrimSpace(w.buf.String())
	w.buf.Reset()
	if line == "" || w.onLine == nil {
		return
	}
	w.onLine(w.stream, line)
}
