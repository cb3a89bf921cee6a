//go:build !windows

package util

import (
	"os"
	"syscall"
)

// ShutdownSignals returns the signals to listen for graceful shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// GracefulSignal asks a process to finish up. FFmpeg treats SIGINT like a
// 'q' on stdin and finalizes the output container.
func GracefulSignal(p *os.Process) error {
	return p.Signal(syscall.SIGINT)
}

// ForceKill forcefully terminates a process.
func ForceKill(p *os.Process) error {
	return p.Signal(syscall.SIGKILL)
}
