package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

var ErrEmptyCommand = errors.New("runner: empty command")

type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// LineFunc receives every output line of the process. It is called from the
// goroutines copying the pipes and must not block.
type LineFunc func(stream Stream, line string)

type Result struct {
	ExitCode int
	Err      error
	Duration time.Duration
}

// Success reports a clean zero exit.
func (r Result) Success() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Process is a running external command whose output is delivered line by line.
type Process struct {
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	done    chan Result
	stdout  *lineWriter
	stderr  *lineWriter
	started time.Time
}

// Start launches argv[0] with the remaining arguments. Cancelling ctx or calling
// Terminate kills the process; pipes are force-closed killGrace later if
// grandchildren keep them open.
func Start(ctx context.Context, argv []string, killGrace time.Duration, onLine LineFunc) (*Process, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, ErrEmptyCommand
	}
	if killGrace <= 0 {
		killGrace = 5 * time.Second
	}

	binPath := argv[0]
	if filepath.IsAbs(binPath) {
		binPath = filepath.Clean(binPath)
	}

	procCtx, cancel := context.WithCancel(ctx)

	// #nosec G204 - argv comes from server configuration plus a validated URL
	cmd := exec.CommandContext(procCtx, binPath, argv[1:]...)
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
	cmd.WaitDelay = killGrace

	p := &Process{
		cmd:    cmd,
		cancel: cancel,
		done:   make(chan Result, 1),
		stdout: newLineWriter(StreamStdout, onLine),
		stderr: newLineWriter(StreamStderr, onLine),
	}
	cmd.Stdout = p.stdout
	cmd.Stderr = p.stderr

	p.started = time.Now()
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start %s: %w", binPath, err)
	}

	go p.wait()
	return p, nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	p.stdout.Flush()
	p.stderr.Flush()

	result := Result{Duration: time.Since(p.started)}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	case errors.Is(err, exec.ErrWaitDelay) && p.cmd.ProcessState != nil:
		result.ExitCode = p.cmd.ProcessState.ExitCode()
	default:
		result.ExitCode = -1
		result.Err = err
	}

	p.cancel()
	p.done <- result
	close(p.done)
}

// Done delivers the result once the process has exited and its output is drained.
func (p *Process) Done() <-chan Result {
	return p.done
}

// Terminate kills the process. Safe to call more than once.
func (p *Process) Terminate() {
	p.cancel()
}

func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}
