package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oszuidwest/zwfm-capture/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-capture/internal/storage"
	"github.com/oszuidwest/zwfm-capture/internal/trim"
)

const probeTimeout = 30 * time.Second

func NewTrimCmd(deps *Dependencies) *cobra.Command {
	var (
		start, end int
		output     string
	)

	cmd := &cobra.Command{
		Use:   "trim <file>",
		Short: "Cut a recording to a percentage window",
		Long:  "Trim a recording without re-encoding. The window is given in percent of the recording's length.\nIf the encoder fails, the original file is kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrim(cmd.Context(), cmd, deps, args[0], trim.FromPercent(start, end), output)
		},
	}

	cmd.Flags().IntVar(&start, "start", 0, "keep from this percentage")
	cmd.Flags().IntVar(&end, "end", 100, "keep up to this percentage")
	cmd.Flags().StringVarP(&output, "output", "o", "", "copy the result here instead of leaving it next to the input")

	return cmd
}

func runTrim(ctx context.Context, cmd *cobra.Command, deps *Dependencies, src string, w trim.Window, output string) error {
	out := cmd.OutOrStdout()

	var total time.Duration
	if !w.IsIdentity() {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		d, err := ffmpeg.ProbeDuration(probeCtx, deps.Runner, deps.EncoderPath, src)
		cancel()
		if err != nil {
			return err
		}
		total = d
		start, length := w.Bounds(d.Seconds())
		fmt.Fprintf(out, "Duration %s, keeping %.2fs from %.2fs\n", d.Round(10*time.Millisecond), length, start)
	}

	t := &trim.Trimmer{EncoderPath: deps.EncoderPath, Runner: deps.Runner}
	result, err := t.Apply(ctx, src, w, total)
	if err != nil {
		return err
	}
	if result == src && !w.IsIdentity() {
		fmt.Fprintln(out, "Trim failed, keeping the original recording")
	}

	if output != "" {
		if err := storage.Copy(result, output); err != nil {
			return err
		}
		result = output
	}
	fmt.Fprintln(out, result)
	return nil
}
