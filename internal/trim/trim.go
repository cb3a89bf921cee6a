// Package trim cuts a recorded artifact down to a fractional window by
// re-running the encoder in stream copy mode.
package trim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-capture/internal/capture"
	"github.com/oszuidwest/zwfm-capture/internal/ffmpeg"
)

// ErrInvalidWindow is returned for windows outside 0 <= start < end <= 1.
var ErrInvalidWindow = errors.New("invalid trim window")

// Suffix is appended to the base name of trimmed artifacts.
const Suffix = "_trimmed"

// Window is the fraction of a recording to keep.
type Window struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Full keeps the whole recording.
var Full = Window{Start: 0, End: 1}

// Validate checks the window bounds.
func (w Window) Validate() error {
	if math.IsNaN(w.Start) || math.IsNaN(w.End) || w.Start < 0 || w.End > 1 || w.Start >= w.End {
		return fmt.Errorf("%w: [%g, %g]", ErrInvalidWindow, w.Start, w.End)
	}
	return nil
}

// IsIdentity reports whether the window keeps the whole recording.
func (w Window) IsIdentity() bool {
	return w == Full
}

// Bounds converts the window into an absolute start offset and length for a
// recording of the given total duration.
func (w Window) Bounds(total float64) (start, length float64) {
	start = w.Start * total
	return start, w.End*total - start
}

// FromPercent builds a window from the editor's two percentage sliders. Both
// values are clamped to [0, 100] and the start is kept one step below the
// end.
func FromPercent(start, end int) Window {
	start = min(max(start, 0), 100)
	end = min(max(end, 0), 100)
	if start >= end {
		if end == 0 {
			end = 1
		}
		start = end - 1
	}
	return Window{Start: float64(start) / 100, End: float64(end) / 100}
}

// OutputPath derives the trimmed artifact path next to src.
func OutputPath(src string) string {
	ext := filepath.Ext(src)
	return strings.TrimSuffix(src, ext) + Suffix + ext
}

// Trimmer applies trim windows with the encoder.
type Trimmer struct {
	EncoderPath string
	Runner      ffmpeg.Runner
}

// Apply returns the path of the artifact restricted to w. The identity
// window returns src untouched. When the encoder fails the untrimmed src is
// returned so the recording is never lost; only invalid input and context
// cancellation are reported as errors.
func (t *Trimmer) Apply(ctx context.Context, src string, w Window, total time.Duration) (string, error) {
	if w.IsIdentity() {
		return src, nil
	}
	if total < 0 {
		return "", fmt.Errorf("%w: negative duration %v", ErrInvalidWindow, total)
	}
	if err := w.Validate(); err != nil {
		return "", err
	}

	start, length := w.Bounds(total.Seconds())
	dst := OutputPath(src)
	cmd := capture.NewCommand(t.EncoderPath, ffmpeg.TrimArgs(src, dst, seconds(start), seconds(length))...)

	slog.Info("trimming recording", "source", src, "start", start, "length", length)
	stderr, err := t.Runner.Run(ctx, cmd)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		slog.Warn("trim failed, keeping untrimmed recording", "source", src, "error", err,
			"stderr", ffmpeg.ExtractLastError(stderr))
		return src, nil
	}
	return dst, nil
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
