package ffmpeg

import (
	"context"
	"fmt"

	"github.com/oszuidwest/zwfm-capture/internal/capture"
)

// Verify checks that the encoder binary runs.
func Verify(ctx context.Context, r Runner, encoderPath string) error {
	if _, err := r.Run(ctx, capture.NewCommand(encoderPath, "-version")); err != nil {
		return fmt.Errorf("encoder %s is not usable: %w", encoderPath, err)
	}
	return nil
}

// SelfTest encodes one second of a generated test pattern into the null
// muxer, exercising the encoder without touching any capture device.
func SelfTest(ctx context.Context, r Runner, encoderPath string) error {
	cmd := capture.NewCommand(encoderPath,
		"-hide_banner",
		"-loglevel", "error",
		"-f", "lavfi",
		"-i", "testsrc=duration=1:size=320x240:rate=1",
		"-f", "null", "-",
	)
	if _, err := r.Run(ctx, cmd); err != nil {
		return fmt.Errorf("encoder self-test failed: %w", err)
	}
	return nil
}

// Validate decodes a media file completely and reports whether it is
// readable.
func Validate(ctx context.Context, r Runner, encoderPath, file string) error {
	cmd := capture.NewCommand(encoderPath,
		"-hide_banner",
		"-loglevel", "error",
		"-i", file,
		"-f", "null", "-",
	)
	if _, err := r.Run(ctx, cmd); err != nil {
		return fmt.Errorf("%s failed validation: %w", file, err)
	}
	return nil
}
