//go:build windows

package util

import (
	"errors"
	"os"
)

// ErrGracefulNotSupported indicates graceful signalling is not available.
var ErrGracefulNotSupported = errors.New("graceful signal not supported on Windows")

// ShutdownSignals returns the signals to listen for graceful shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// GracefulSignal attempts graceful process termination.
// Windows has no SIGINT for child processes; the stdin 'q' is the only
// graceful path there, so this always reports failure.
func GracefulSignal(p *os.Process) error {
	return ErrGracefulNotSupported
}

// ForceKill forcefully terminates a process.
func ForceKill(p *os.Process) error {
	return p.Kill()
}
