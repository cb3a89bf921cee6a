package cli

import (
	"context"
	"log/slog"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/oszuidwest/zwfm-capture/internal/config"
	"github.com/oszuidwest/zwfm-capture/internal/lockfile"
	"github.com/oszuidwest/zwfm-capture/internal/metrics"
	"github.com/oszuidwest/zwfm-capture/internal/notify"
	"github.com/oszuidwest/zwfm-capture/internal/recorder"
	"github.com/oszuidwest/zwfm-capture/internal/server"
	"github.com/oszuidwest/zwfm-capture/internal/util"
	"github.com/oszuidwest/zwfm-capture/internal/version"
)

const shutdownTimeout = 5 * time.Second

func NewServeCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web interface (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), deps)
		},
	}
}

// newRecorder wires the recorder with notifications and, when m is set,
// metrics.
func newRecorder(deps *Dependencies, m *metrics.Metrics) *recorder.Recorder {
	return recorder.New(deps.Config, recorder.Deps{
		Spawner:     deps.Spawner,
		Runner:      deps.Runner,
		Lister:      deps.Lister,
		Metrics:     m,
		Notifier:    notify.NewEventNotifier(deps.Config),
		EncoderPath: deps.EncoderPath,
		Platform:    deps.Platform,
	})
}

func runServe(ctx context.Context, deps *Dependencies) error {
	lock, err := lockfile.Acquire("")
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Warn("failed to release lock", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, util.ShutdownSignals()...)
	defer stop()

	m := metrics.New()
	rec := newRecorder(deps, m)
	rec.StartCleanup()

	checker := version.NewChecker()
	go checker.Run(ctx)

	started := deps.Config.Snapshot()
	go func() {
		err := deps.Config.Watch(ctx, func(snap config.Snapshot) {
			if snap.TempDir != started.TempDir || snap.GracePeriod != started.GracePeriod || snap.FFmpegPath != started.FFmpegPath {
				slog.Warn("recorder settings changed on disk, restart to apply them")
			}
		})
		if err != nil {
			slog.Warn("config watcher stopped", "error", err)
		}
	}()

	srv := server.New(deps.Config, rec, m.Handler(), checker.Info)
	httpServer := srv.Start(ctx)
	slog.Info("recorder ready", "platform", deps.Platform, "encoder", deps.EncoderPath, "port", deps.Config.WebPort())

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	rec.Close()
	slog.Info("shutdown complete")
	return nil
}
