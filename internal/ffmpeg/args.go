// Package ffmpeg provides shared FFmpeg utilities: error extraction, binary
// discovery, health checks and duration probing.
package ffmpeg

import (
	"bytes"
	"context"

	"github.com/oszuidwest/zwfm-capture/internal/capture"
)

// MaxStderrSize limits the stderr buffer to prevent memory exhaustion.
const MaxStderrSize = 64 * 1024 // 64KB

// Runner executes an encoder command to completion and returns its stderr.
// A non-zero exit is reported as an error.
type Runner interface {
	Run(ctx context.Context, cmd capture.Command) (stderr string, err error)
}

// ExtractLastError extracts the last meaningful error line from FFmpeg stderr.
// Returns empty string if no meaningful error found.
func ExtractLastError(stderr string) string {
	if stderr == "" {
		return ""
	}
	lines := bytes.Split([]byte(stderr), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := string(bytes.TrimSpace(lines[i]))
		if line != "" {
			if len(line) > 200 {
				return line[:200] + "..."
			}
			return line
		}
	}
	return ""
}

// TrimArgs returns the arguments that copy the [start, start+length) range of
// input into output without re-encoding.
func TrimArgs(input, output, start, length string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-i", input,
		"-ss", start,
		"-t", length,
		"-c", "copy",
		"-y", output,
	}
}
