package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collected struct {
	mu    sync.Mutex
	lines map[Stream][]string
}

func (c *collected) add(stream Stream, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lines == nil {
		c.lines = make(map[Stream][]string)
	}
	c.lines[stream] = append(c.lines[stream], line)
}

func (c *collected) get(stream Stream) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines[stream]...)
}

func waitResult(t *testing.T, p *Process) Result {
	t.Helper()
	select {
	case r := <-p.Done():
		return r
	case <-time.After(10 * time.Second):
		t.Fatal("process did not finish")
		return Result{}
	}
}

func TestStartDeliversLines(t *testing.T) {
	var out collected
	p, err := Start(context.Background(), []string{
		"/bin/sh", "-c", `echo one; printf 'two\rthree\n'; echo oops >&2; printf tail`,
	}, time.Second, out.add)
	require.NoError(t, err)

	result := waitResult(t, p)
	assert.True(t, result.Success())
	assert.Equal(t, []string{"one", "two", "three", "tail"}, out.get(StreamStdout))
	assert.Equal(t, []string{"oops"}, out.get(StreamStderr))
}

func TestStartReportsExitCode(t *testing.T) {
	p, err := Start(context.Background(), []string{"/bin/sh", "-c", "exit 7"}, time.Second, nil)
	require.NoError(t, err)

	result := waitResult(t, p)
	assert.NoError(t, result.Err)
	assert.Equal(t, 7, result.ExitCode)
	assert.False(t, result.Success())
}

func TestTerminateKillsProcess(t *testing.T) {
	p, err := Start(context.Background(), []string{"/bin/sh", "-c", "exec sleep 30"}, 200*time.Millisecond, nil)
	require.NoError(t, err)
	assert.NotZero(t, p.Pid())

	start := time.Now()
	p.Terminate()
	result := waitResult(t, p)
	assert.False(t, result.Success())
	assert.Less(t, time.Since(start), 5*time.Second)

	// second call is harmless
	p.Terminate()
}

func TestContextCancelKillsProcess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p, err := Start(ctx, []string{"/bin/sh", "-c", "exec sleep 30"}, 200*time.Millisecond, nil)
	require.NoError(t, err)

	cancel()
	result := waitResult(t, p)
	assert.False(t, result.Success())
}

func TestStartErrors(t *testing.T) {
	_, err := Start(context.Background(), nil, time.Second, nil)
	assert.ErrorIs(t, err, ErrEmptyCommand)

	_, err = Start(context.Background(), []string{"/definitely/not/a/binary"}, time.Second, nil)
	assert.Error(t, err)
}
