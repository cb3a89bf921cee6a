// Package storage manages recording artifacts on disk: naming, the save
// location, copying finished recordings and removing temporary files.
package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/oszuidwest/zwfm-capture/internal/capture"
	"github.com/oszuidwest/zwfm-capture/internal/util"
)

// SaveDirName is the folder created below the user's documents directory.
const SaveDirName = "SnapCap Recordings"

// FallbackSaveLocation is used when no home directory can be determined.
const FallbackSaveLocation = "./recordings"

// GenerateFileName returns the default name for a saved recording.
func GenerateFileName(f capture.Format, t time.Time) string {
	return "Recording_" + t.UTC().Format("2006-01-02T15-04-05") + f.Extension()
}

// DefaultSaveLocation returns, and creates, the default directory for saved
// recordings.
func DefaultSaveLocation() string {
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("failed to resolve home directory", "error", err)
		return FallbackSaveLocation
	}
	base := home
	if docs := filepath.Join(home, "Documents"); isDir(docs) {
		base = docs
	}
	dir := filepath.Join(base, SaveDirName)
	if err := EnsureDir(dir); err != nil {
		slog.Warn("failed to create save location", "path", dir, "error", err)
		return FallbackSaveLocation
	}
	return dir
}

// EnsureDir creates dir and its parents.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create directory", err)
	}
	return nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ResolveDestination turns a save target into a file path. A directory (or
// an empty target, meaning fallbackDir) gets a generated file name.
func ResolveDestination(target, fallbackDir string, f capture.Format, now time.Time) string {
	if target == "" {
		target = fallbackDir
	}
	if isDir(target) || filepath.Ext(target) == "" {
		return filepath.Join(target, GenerateFileName(f, now))
	}
	return target
}

// Copy copies src to dst, creating the destination directory. The file is
// written under a temporary name and renamed so a partial copy never
// appears at dst.
func Copy(src, dst string) (err error) {
	if err := EnsureDir(filepath.Dir(dst)); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return util.WrapError("open recording", err)
	}
	defer util.SafeClose(in, src)

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".partial-*")
	if err != nil {
		return util.WrapError("create destination", err)
	}
	defer func() {
		if err != nil {
			if rmErr := os.Remove(tmp.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				slog.Warn("failed to remove partial copy", "path", tmp.Name(), "error", rmErr)
			}
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		util.SafeClose(tmp, tmp.Name())
		return util.WrapError("copy recording", err)
	}
	if err = tmp.Close(); err != nil {
		return util.WrapError("flush recording", err)
	}
	if err = os.Rename(tmp.Name(), dst); err != nil {
		return util.WrapError("move recording into place", err)
	}
	return nil
}

// Discard deletes a recording. A missing file is not an error.
func Discard(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("discard %s: %w", path, err)
	}
	return nil
}
