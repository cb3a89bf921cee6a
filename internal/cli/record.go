package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/oszuidwest/zwfm-capture/internal/capture"
	"github.com/oszuidwest/zwfm-capture/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-capture/internal/lockfile"
	"github.com/oszuidwest/zwfm-capture/internal/session"
	"github.com/oszuidwest/zwfm-capture/internal/trim"
	"github.com/oszuidwest/zwfm-capture/internal/util"
)

const saveTimeout = 10 * time.Minute

type recordFlags struct {
	duration    time.Duration
	trimStart   int
	trimEnd     int
	output      string
	camera      string
	microphone  string
	withCamera  bool
	withAudio   bool
	systemAudio bool
	quality     string
	format      string
	position    string
	verify      bool
}

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	var f recordFlags

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record in the foreground until Ctrl+C or --duration",
		Long: "Record the screen in the foreground. Device and quality flags override the configured settings.\n" +
			"When recording ends the file is trimmed to --trim-start/--trim-end (percent) and saved to --output,\n" +
			"or to the configured save location.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := deps.Config.RecordingOptions()
			f.apply(cmd, &opts)
			return runRecord(cmd, deps, opts, f)
		},
	}

	fl := cmd.Flags()
	fl.DurationVarP(&f.duration, "duration", "d", 0, "stop automatically after this long")
	fl.IntVar(&f.trimStart, "trim-start", 0, "keep from this percentage of the recording")
	fl.IntVar(&f.trimEnd, "trim-end", 100, "keep up to this percentage of the recording")
	fl.StringVarP(&f.output, "output", "o", "", "file or directory to save to")
	fl.StringVar(&f.camera, "camera", "", "camera device")
	fl.StringVar(&f.microphone, "microphone", "", "microphone device")
	fl.BoolVar(&f.withCamera, "with-camera", false, "overlay the camera")
	fl.BoolVar(&f.withAudio, "with-audio", true, "record the microphone")
	fl.BoolVar(&f.systemAudio, "system-audio", false, "record system audio where supported")
	fl.StringVar(&f.quality, "quality", "", "low, medium, high or ultra")
	fl.StringVar(&f.format, "format", "", "mp4, webm or mkv")
	fl.StringVar(&f.position, "camera-position", "", "top-left, top-right, bottom-left or bottom-right")
	fl.BoolVar(&f.verify, "verify", false, "decode the saved file to check it")

	return cmd
}

// apply overrides opts with the flags given on the command line.
func (f *recordFlags) apply(cmd *cobra.Command, opts *capture.Options) {
	changed := cmd.Flags().Changed
	if changed("camera") {
		opts.CameraDevice = f.camera
	}
	if changed("microphone") {
		opts.AudioDevice = f.microphone
	}
	if changed("with-camera") {
		opts.WithCamera = f.withCamera
	}
	if changed("with-audio") {
		opts.WithAudio = f.withAudio
	}
	if changed("system-audio") {
		opts.WithSystemAudio = f.systemAudio
	}
	if changed("quality") {
		opts.Quality = capture.ParseQuality(f.quality)
	}
	if changed("format") {
		opts.Format = capture.ParseFormat(f.format)
	}
	if changed("camera-position") {
		opts.CameraPosition = capture.ParseOverlayPosition(f.position)
	}
}

func runRecord(cmd *cobra.Command, deps *Dependencies, opts capture.Options, f recordFlags) error {
	window := trim.FromPercent(f.trimStart, f.trimEnd)

	lock, err := lockfile.Acquire("")
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Warn("failed to release lock", "error", err)
		}
	}()

	rec := newRecorder(deps, nil)
	defer rec.Close()

	exited := make(chan struct{}, 1)
	rec.AddObserver(func(e session.Event) {
		if e.Type == session.EventEncoderExited {
			select {
			case exited <- struct{}{}:
			default:
			}
		}
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), util.ShutdownSignals()...)
	defer stop()

	out := cmd.OutOrStdout()
	path, err := rec.Start(opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Recording to %s, press Ctrl+C to stop\n", path)

	var timeout <-chan time.Time
	if f.duration > 0 {
		timer := time.NewTimer(f.duration)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ctx.Done():
	case <-timeout:
	case <-exited:
		fmt.Fprintln(out, "Encoder exited unexpectedly")
	}

	s := rec.Stop()
	fmt.Fprintf(out, "Recording %s after %s\n", s.Status, util.FormatClock(s.Duration()))
	if s.Status == session.StatusFailed {
		fmt.Fprintf(out, "Warning: %s\n", s.LastError)
	}

	if err := rec.SetTrim(window, 0); err != nil {
		return err
	}

	// The signal context is already cancelled after Ctrl+C.
	saveCtx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	res, err := rec.Save(saveCtx, f.output)
	if err != nil {
		return err
	}
	if f.verify {
		if err := ffmpeg.Validate(saveCtx, deps.Runner, deps.EncoderPath, res.Path); err != nil {
			return err
		}
	}

	trimmed := ""
	if res.Trimmed {
		trimmed = " (trimmed)"
	}
	fmt.Fprintf(out, "Saved %s%s\n", res.Path, trimmed)
	return nil
}
