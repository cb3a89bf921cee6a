// Package lockfile keeps a host to a single running recorder.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/oszuidwest/zwfm-capture/internal/util"
)

// DefaultName is the lock file created in the temp directory.
const DefaultName = "zwfm-capture.lock"

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("another recorder is already running")

// Lock is an exclusive, non-blocking file lock.
type Lock struct {
	f *flock.Flock
}

// DefaultPath returns the lock location used when none is configured.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), DefaultName)
}

// Acquire takes the lock at path without waiting.
func Acquire(path string) (*Lock, error) {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o770); err != nil {
		return nil, util.WrapError("create lock directory", err)
	}

	f := flock.New(path)
	ok, err := f.TryLock()
	if err != nil {
		return nil, util.WrapError("acquire lock", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrLocked, path)
	}
	return &Lock{f: f}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.f.Path()
}

// Release drops the lock.
func (l *Lock) Release() error {
	if err := l.f.Unlock(); err != nil {
		return util.WrapError("release lock", err)
	}
	return nil
}
