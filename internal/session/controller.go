// Package session supervises one encoder process per recording: it builds
// the capture command, spawns the encoder and stops it with a graceful quit
// followed by a forced kill.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oszuidwest/zwfm-capture/internal/capture"
	"github.com/oszuidwest/zwfm-capture/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-capture/internal/platform"
)

// DefaultGracePeriod is how long Stop waits for the encoder to exit after
// the graceful quit before killing it.
const DefaultGracePeriod = 2 * time.Second

// TempFilePrefix prefixes every artifact the controller writes.
const TempFilePrefix = "recording_"

// Config configures a Controller.
type Config struct {
	EncoderPath string
	OutputDir   string
	GracePeriod time.Duration
	// Resolve detects the host platform. Defaults to platform.Resolve.
	Resolve func() platform.Kind
	// Display is the X11 display used on Linux.
	Display string
	// Observer receives lifecycle events synchronously. It must not call
	// back into the Controller.
	Observer func(Event)
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Controller drives at most one encoder process at a time.
type Controller struct {
	cfg     Config
	spawner Spawner

	mu      sync.Mutex
	session Session
	proc    Process
	// settled is closed when a Starting or Stopping phase resolves.
	settled chan struct{}
}

// New creates a controller in the idle state.
func New(cfg Config, spawner Spawner) *Controller {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.Resolve == nil {
		cfg.Resolve = platform.Resolve
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = os.TempDir()
	}
	return &Controller{
		cfg:     cfg,
		spawner: spawner,
		session: Session{Status: StatusIdle},
	}
}

// Start begins a new recording and returns the path the encoder writes to.
func (c *Controller) Start(opts capture.Options) (string, error) {
	c.mu.Lock()
	if c.session.Status.Busy() {
		c.mu.Unlock()
		return "", ErrSessionBusy
	}
	c.session = Session{
		ID:     uuid.NewString(),
		Status: StatusStarting,
	}
	c.proc = nil
	c.settled = make(chan struct{})
	id := c.session.ID
	c.mu.Unlock()

	path, proc, err := c.spawn(opts)
	if err != nil {
		startErr := &StartError{SessionID: id, Err: err}
		s := c.settle(func(s *Session) {
			s.Status = StatusFailed
			s.LastError = err.Error()
		})
		slog.Error("recording failed to start", "session", id, "error", err)
		c.emit(Event{Type: EventStartFailed, Session: s, Err: startErr})
		return "", startErr
	}

	s := c.settle(func(s *Session) {
		s.Status = StatusActive
		s.OutputPath = path
		s.Pid = proc.Pid()
		s.StartedAt = c.cfg.Now()
		c.proc = proc
	})
	go c.monitor(id, proc)

	slog.Info("recording started", "session", id, "pid", s.Pid, "output", path)
	c.emit(Event{Type: EventStarted, Session: s})
	return path, nil
}

func (c *Controller) spawn(opts capture.Options) (string, Process, error) {
	kind := c.cfg.Resolve()
	if kind == platform.Unknown {
		slog.Warn("platform not recognised, using default capture backend")
	}

	opts.OutputPath = filepath.Join(c.cfg.OutputDir,
		fmt.Sprintf("%s%d%s", TempFilePrefix, c.cfg.Now().UnixMilli(), opts.Format.Extension()))
	if opts.Display == "" {
		opts.Display = c.cfg.Display
	}

	cmd, err := capture.Build(opts, kind, c.cfg.EncoderPath)
	if err != nil {
		return "", nil, err
	}
	for _, skipped := range cmd.Skipped {
		slog.Warn("capture input skipped", "platform", kind, "reason", skipped)
	}
	slog.Debug("spawning encoder", "command", cmd.String())

	proc, err := c.spawner.Spawn(cmd)
	if err != nil {
		return "", nil, err
	}
	return opts.OutputPath, proc, nil
}

// settle applies fn to the session, wakes waiters on the pending phase and
// returns a copy of the result.
func (c *Controller) settle(fn func(*Session)) Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.session)
	if c.settled != nil {
		close(c.settled)
		c.settled = nil
	}
	return c.session
}

// monitor logs an encoder that exits while the session is still active.
func (c *Controller) monitor(id string, proc Process) {
	<-proc.Done()

	c.mu.Lock()
	active := c.session.ID == id && c.session.Status == StatusActive
	s := c.session
	c.mu.Unlock()
	if !active {
		return
	}

	err := proc.Err()
	if err == nil {
		slog.Warn("encoder exited while recording", "session", id)
	} else {
		slog.Error("encoder exited while recording", "session", id, "error", err,
			"stderr", ffmpeg.ExtractLastError(proc.Stderr()))
	}
	c.emit(Event{Type: EventEncoderExited, Session: s, Err: err})
}

// Stop ends the active recording. It never returns an error: signalling
// problems are logged and reported to the observer, and the session always
// ends Stopped or Failed.
func (c *Controller) Stop() Session {
	for {
		c.mu.Lock()
		switch c.session.Status {
		case StatusStarting, StatusStopping:
			wait := c.settled
			c.mu.Unlock()
			if wait != nil {
				<-wait
			}
			continue
		case StatusActive:
			c.session.Status = StatusStopping
			c.settled = make(chan struct{})
			proc := c.proc
			s := c.session
			c.mu.Unlock()
			return c.stop(s, proc)
		default:
			s := c.session
			c.mu.Unlock()
			return s
		}
	}
}

func (c *Controller) stop(s Session, proc Process) Session {
	began := time.Now()
	log := slog.With("session", s.ID, "pid", s.Pid)

	var exitedEarly error
	select {
	case <-proc.Done():
		exitedEarly = proc.Err()
	default:
	}

	if err := proc.Quit(); err != nil {
		log.Warn("graceful quit failed", "error", err)
		c.emit(Event{Type: EventSignalFailed, Session: s, Err: err})
	}

	timer := time.NewTimer(c.cfg.GracePeriod)
	select {
	case <-proc.Done():
	case <-timer.C:
		log.Warn("encoder did not exit within grace period", "grace", c.cfg.GracePeriod)
	}
	timer.Stop()

	if err := proc.Kill(); err != nil {
		log.Warn("forced kill failed", "error", err)
		c.emit(Event{Type: EventSignalFailed, Session: s, Err: err})
	}

	final := c.settle(func(s *Session) {
		s.StoppedAt = c.cfg.Now()
		if exitedEarly != nil {
			s.Status = StatusFailed
			s.LastError = exitedEarly.Error()
		} else {
			s.Status = StatusStopped
		}
		c.proc = nil
	})
	elapsed := time.Since(began)

	if final.Status == StatusFailed {
		log.Error("recording failed", "error", exitedEarly, "output", final.OutputPath)
		c.emit(Event{Type: EventFailed, Session: final, Err: exitedEarly, Elapsed: elapsed})
		return final
	}
	log.Info("recording stopped", "output", final.OutputPath, "duration", final.Duration().Round(time.Second))
	c.emit(Event{Type: EventStopped, Session: final, Elapsed: elapsed})
	return final
}

func (c *Controller) emit(e Event) {
	if c.cfg.Observer != nil {
		c.cfg.Observer(e)
	}
}

// IsActive reports whether the encoder is recording.
func (c *Controller) IsActive() bool {
	return c.Status() == StatusActive
}

// Status returns the current lifecycle status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Status
}

// Session returns a copy of the current session.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// IsStartError reports whether err came from a failed start attempt.
func IsStartError(err error) bool {
	var se *StartError
	return errors.As(err, &se)
}
