// Package cli implements the zwfm-capture command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/oszuidwest/zwfm-capture/internal/config"
	"github.com/oszuidwest/zwfm-capture/internal/devices"
	"github.com/oszuidwest/zwfm-capture/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-capture/internal/logging"
	"github.com/oszuidwest/zwfm-capture/internal/platform"
	"github.com/oszuidwest/zwfm-capture/internal/process"
	"github.com/oszuidwest/zwfm-capture/internal/session"
	"github.com/oszuidwest/zwfm-capture/internal/version"
)

// Dependencies are shared by all commands. Config is loaded once flags are
// parsed; Platform and EncoderPath are detected unless already set.
type Dependencies struct {
	Spawner session.Spawner
	Runner  ffmpeg.Runner
	Lister  *devices.Lister

	Config      *config.Config
	Platform    platform.Kind
	EncoderPath string

	configPath string
	logLevel   string
	logFile    string
	logCloser  io.Closer
}

// DefaultDependencies runs the real encoder.
func DefaultDependencies() *Dependencies {
	return &Dependencies{
		Spawner: process.ExecSpawner{},
		Runner:  process.ExecRunner{},
		Lister:  devices.NewLister(),
	}
}

// NewRootCmd builds the command tree. Without a subcommand it serves the
// web interface.
func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "zwfm-capture",
		Short:         "Record the screen, camera and microphone with FFmpeg",
		Long:          "Records the screen with an optional camera overlay and microphone by supervising an FFmpeg process.\nRun without a command to start the web interface.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return deps.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if deps.logCloser != nil {
				_ = deps.logCloser.Close()
			}
		},
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.String() + "\n")

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&deps.configPath, "config", "c", "", "path to config file, .json or .toml (default: config.json next to the binary)")
	flags.StringVar(&deps.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.StringVar(&deps.logFile, "log-file", "", "also write JSON logs to this file, rotated by size")

	serveCmd := NewServeCmd(deps)
	rootCmd.RunE = serveCmd.RunE

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewTrimCmd(deps))
	rootCmd.AddCommand(NewDevicesCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

func (d *Dependencies) init(cmd *cobra.Command) error {
	closer, err := logging.Setup(logging.Options{
		Level:  d.logLevel,
		File:   d.logFile,
		Stderr: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	d.logCloser = closer

	if d.configPath == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}
		d.configPath = filepath.Join(filepath.Dir(exe), "config.json")
	}
	slog.Debug("using config file", "path", d.configPath)

	d.Config = config.New(d.configPath)
	if err := d.Config.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if d.Platform == platform.Unknown {
		d.Platform = platform.Resolve()
	}
	if d.EncoderPath == "" {
		d.EncoderPath = ffmpeg.ResolvePath(d.Platform, exeDir(), d.Config.FFmpegPath())
	}
	return nil
}

func exeDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	cmd := NewRootCmd(DefaultDependencies())
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
		return 1
	}
	return 0
}
