package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/oszuidwest/zwfm-capture/internal/trim"
)

// Trimmer restricts a recording to a window.
type Trimmer interface {
	Apply(ctx context.Context, src string, w trim.Window, total time.Duration) (string, error)
}

// SaveRequest describes a finished recording to keep.
type SaveRequest struct {
	Source      string
	Window      trim.Window
	Duration    time.Duration
	Destination string
}

// SaveResult reports where a recording ended up.
type SaveResult struct {
	Path    string `json:"path"`
	Trimmed bool   `json:"trimmed"`
}

// Saver trims, copies and then clears temporary files.
type Saver struct {
	Trimmer Trimmer
	Cleaner *Cleaner
}

// Save applies the trim window, copies the result to the destination and
// removes temporary recordings. A failed trim saves the untrimmed source.
func (s *Saver) Save(ctx context.Context, req SaveRequest) (SaveResult, error) {
	final, err := s.Trimmer.Apply(ctx, req.Source, req.Window, req.Duration)
	if err != nil {
		return SaveResult{}, err
	}
	if err := Copy(final, req.Destination); err != nil {
		return SaveResult{}, err
	}
	slog.Info("recording saved", "path", req.Destination, "trimmed", final != req.Source)

	if s.Cleaner != nil {
		s.Cleaner.RemoveAll()
	}
	return SaveResult{Path: req.Destination, Trimmed: final != req.Source}, nil
}
