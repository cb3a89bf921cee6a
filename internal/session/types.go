package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/oszuidwest/zwfm-capture/internal/capture"
)

// Status is the lifecycle state of a recording session.
type Status string

// Session statuses.
const (
	StatusIdle     Status = "idle"
	StatusStarting Status = "starting"
	StatusActive   Status = "active"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
	StatusFailed   Status = "failed"
)

// Busy reports whether a session in this status owns, or is about to own,
// an encoder process.
func (s Status) Busy() bool {
	return s == StatusStarting || s == StatusActive || s == StatusStopping
}

// ErrSessionBusy is returned by Start while another recording is in progress.
var ErrSessionBusy = errors.New("recording session busy")

// Session describes one recording attempt.
type Session struct {
	ID         string    `json:"id"`
	Status     Status    `json:"status"`
	OutputPath string    `json:"output_path,omitempty"`
	Pid        int       `json:"pid,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	StoppedAt  time.Time `json:"stopped_at,omitzero"`
	LastError  string    `json:"last_error,omitempty"`
}

// Duration returns how long the session recorded, or has been recording so
// far when it has not stopped yet.
func (s Session) Duration() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if s.StoppedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.StoppedAt.Sub(s.StartedAt)
}

// StartError reports a failed start attempt.
type StartError struct {
	SessionID string
	Err       error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start recording %s: %v", e.SessionID, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// EventType identifies a lifecycle event.
type EventType string

// Lifecycle events emitted to the observer.
const (
	EventStarted       EventType = "started"
	EventStartFailed   EventType = "start_failed"
	EventStopped       EventType = "stopped"
	EventFailed        EventType = "failed"
	EventSignalFailed  EventType = "signal_failed"
	EventEncoderExited EventType = "encoder_exited"
)

// Event is delivered to Config.Observer on every lifecycle transition.
type Event struct {
	Type    EventType
	Session Session
	Err     error
	// Elapsed is the wall-clock time a stop took, set on stopped and failed
	// events produced by Stop.
	Elapsed time.Duration
}

// Process is a running encoder.
type Process interface {
	Pid() int
	// Quit sends the graceful-quit payload over the control channel.
	Quit() error
	// Kill forcefully terminates the process; nil if it already exited.
	Kill() error
	Done() <-chan struct{}
	// Err returns the exit status; only meaningful after Done is closed.
	Err() error
	Stderr() string
}

// Spawner starts encoder processes.
type Spawner interface {
	Spawn(cmd capture.Command) (Process, error)
}
