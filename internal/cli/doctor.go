package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/oszuidwest/zwfm-capture/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-capture/internal/platform"
	"github.com/oszuidwest/zwfm-capture/internal/storage"
)

const checkTimeout = 30 * time.Second

var errChecksFailed = errors.New("some checks failed")

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the encoder and directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
			defer cancel()

			out := cmd.OutOrStdout()
			ok := true
			check := func(name string, err error, detail string) {
				if err != nil {
					ok = false
					report(out, name, false, err.Error())
					return
				}
				report(out, name, true, detail)
			}

			var platformErr error
			if deps.Platform == platform.Unknown {
				platformErr = errors.New("unsupported, screen capture only")
			}
			check("Platform", platformErr, deps.Platform.String())
			check("Config", nil, deps.Config.Path())
			check("Encoder", ffmpeg.Verify(ctx, deps.Runner, deps.EncoderPath), deps.EncoderPath)
			check("Encoder self-test", ffmpeg.SelfTest(ctx, deps.Runner, deps.EncoderPath), "ok")
			check("Temp directory", storage.EnsureDir(deps.Config.TempDir()), deps.Config.TempDir())

			saveDir := deps.Config.CurrentSettings().SaveLocation
			if saveDir == "" {
				saveDir = storage.DefaultSaveLocation()
			}
			check("Save location", storage.EnsureDir(saveDir), saveDir)

			if !ok {
				return errChecksFailed
			}
			fmt.Fprintln(out, "\nAll checks passed. Ready to record!")
			return nil
		},
	}
}

func report(w io.Writer, name string, ok bool, detail string) {
	mark := "ok"
	if !ok {
		mark = "FAIL"
	}
	fmt.Fprintf(w, "[%-4s] %-18s %s\n", mark, name, detail)
}
