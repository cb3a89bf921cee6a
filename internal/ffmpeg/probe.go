package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/oszuidwest/zwfm-capture/internal/capture"
)

// ErrNoDuration is returned when the encoder output carries no duration.
var ErrNoDuration = errors.New("no duration in encoder output")

var durationPattern = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// ParseDuration extracts the container duration from `ffmpeg -i` output.
func ParseDuration(output string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(output)
	if m == nil {
		return 0, ErrNoDuration
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration seconds %q: %w", m[3], err)
	}
	d := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
	return d + time.Duration(seconds*float64(time.Second)), nil
}

// ProbeDuration returns the duration of a media file. `ffmpeg -i` without an
// output always exits non-zero, so the exit status is ignored as long as the
// duration line is present.
func ProbeDuration(ctx context.Context, r Runner, encoderPath, file string) (time.Duration, error) {
	cmd := capture.NewCommand(encoderPath, "-hide_banner", "-i", file)
	stderr, runErr := r.Run(ctx, cmd)
	d, err := ParseDuration(stderr)
	if err != nil {
		if runErr != nil {
			return 0, fmt.Errorf("probe %s: %w", file, runErr)
		}
		return 0, err
	}
	return d, nil
}
