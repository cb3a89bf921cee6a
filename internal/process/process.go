// Package process runs encoder commands as host processes.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/oszuidwest/zwfm-capture/internal/capture"
	"github.com/oszuidwest/zwfm-capture/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-capture/internal/session"
	"github.com/oszuidwest/zwfm-capture/internal/util"
)

// QuitPayload is written to the encoder's stdin to request a graceful stop.
const QuitPayload = "q\n"

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if msg := ffmpeg.ExtractLastError(e.Stderr); msg != "" {
		return fmt.Sprintf("exit status %d: %s", e.Code, msg)
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Handle is a running encoder process.
type Handle struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *util.BoundedBuffer
	done   chan struct{}

	mu      sync.Mutex
	waitErr error
	quitted bool
}

// Pid returns the operating system process id.
func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// Quit asks the encoder to finish and finalize its output. When stdin can
// no longer be written the process is signalled instead.
func (h *Handle) Quit() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.quitted {
		return nil
	}
	h.quitted = true

	_, err := io.WriteString(h.stdin, QuitPayload)
	if err == nil {
		return nil
	}
	slog.Warn("failed to write quit to encoder stdin, signalling instead", "pid", h.Pid(), "error", err)
	if sigErr := util.GracefulSignal(h.cmd.Process); sigErr != nil {
		if errors.Is(sigErr, os.ErrProcessDone) {
			return nil
		}
		return util.WrapError("signal encoder", sigErr)
	}
	return nil
}

// Kill forcefully terminates the process. Killing an exited process is not
// an error.
func (h *Handle) Kill() error {
	err := util.ForceKill(h.cmd.Process)
	if err == nil || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	select {
	case <-h.done:
		return nil
	default:
	}
	return util.WrapError("kill encoder", err)
}

// Done is closed once the process has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the exit status once Done is closed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waitErr
}

// Stderr returns the captured tail of the encoder's stderr.
func (h *Handle) Stderr() string {
	return h.stderr.String()
}

func (h *Handle) wait() {
	err := h.cmd.Wait()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			err = &ExitError{Code: exitErr.ExitCode(), Stderr: h.stderr.String()}
		}
	}
	h.mu.Lock()
	h.waitErr = err
	h.mu.Unlock()
	close(h.done)
}

// ExecSpawner starts encoder commands with os/exec.
type ExecSpawner struct{}

// Spawn starts cmd and returns a handle to it.
func (ExecSpawner) Spawn(cmd capture.Command) (session.Process, error) {
	c := exec.Command(cmd.Path(), cmd.Args()...)
	stdin, err := c.StdinPipe()
	if err != nil {
		return nil, util.WrapError("open encoder stdin", err)
	}
	stderr := util.NewStderrBuffer()
	c.Stderr = stderr

	if err := c.Start(); err != nil {
		util.SafeClose(stdin, "encoder stdin")
		return nil, util.WrapError("start encoder", err)
	}

	h := &Handle{
		cmd:    c,
		stdin:  stdin,
		stderr: stderr,
		done:   make(chan struct{}),
	}
	go h.wait()
	return h, nil
}

// ExecRunner runs encoder commands to completion.
type ExecRunner struct{}

// Run executes cmd and returns its stderr. A non-zero exit yields an
// *ExitError; cancelling ctx kills the process.
func (ExecRunner) Run(ctx context.Context, cmd capture.Command) (string, error) {
	c := exec.CommandContext(ctx, cmd.Path(), cmd.Args()...)
	stderr := util.NewStderrBuffer()
	c.Stderr = stderr

	err := c.Run()
	out := stderr.String()
	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out, &ExitError{Code: exitErr.ExitCode(), Stderr: out}
	}
	return out, util.WrapError("run encoder", err)
}

var (
	_ ffmpeg.Runner   = ExecRunner{}
	_ session.Spawner = ExecSpawner{}
)
