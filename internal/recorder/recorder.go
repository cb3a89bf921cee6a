// Package recorder ties the session controller to trimming, saving,
// device discovery, notifications and metrics.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-capture/internal/capture"
	"github.com/oszuidwest/zwfm-capture/internal/config"
	"github.com/oszuidwest/zwfm-capture/internal/devices"
	"github.com/oszuidwest/zwfm-capture/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-capture/internal/metrics"
	"github.com/oszuidwest/zwfm-capture/internal/notify"
	"github.com/oszuidwest/zwfm-capture/internal/platform"
	"github.com/oszuidwest/zwfm-capture/internal/session"
	"github.com/oszuidwest/zwfm-capture/internal/storage"
	"github.com/oszuidwest/zwfm-capture/internal/trim"
	"github.com/oszuidwest/zwfm-capture/internal/types"
	"github.com/oszuidwest/zwfm-capture/internal/util"
)

// ErrNoPendingRecording is returned by trim, save and discard when there is
// no stopped recording to act on.
var ErrNoPendingRecording = errors.New("no recording to save")

// probeTimeout bounds the duration probe before a save.
const probeTimeout = 15 * time.Second

// Pending is a stopped recording awaiting save or discard.
type Pending struct {
	SessionID string
	Path      string
	Duration  time.Duration
	Window    trim.Window

	// measured is set when Duration came from the client's player rather
	// than the wall clock.
	measured bool
}

// Deps are the collaborators a Recorder runs with. Nil Metrics and Notifier
// disable those concerns.
type Deps struct {
	Spawner     session.Spawner
	Runner      ffmpeg.Runner
	Lister      *devices.Lister
	Metrics     *metrics.Metrics
	Notifier    *notify.EventNotifier
	EncoderPath string
	Platform    platform.Kind
}

// Recorder is the application core shared by the web server and the CLI.
type Recorder struct {
	cfg     *config.Config
	deps    Deps
	ctrl    *session.Controller
	trimmer *trim.Trimmer
	cleaner *storage.Cleaner
	saver   *storage.Saver

	saveMu sync.Mutex

	mu        sync.Mutex
	pending   *Pending
	saving    string
	autoStop  *time.Timer
	observers []func(session.Event)
}

// New creates a Recorder. Temporary recordings go to cfg.TempDir.
func New(cfg *config.Config, deps Deps) *Recorder {
	snap := cfg.Snapshot()
	r := &Recorder{
		cfg:  cfg,
		deps: deps,
		trimmer: &trim.Trimmer{
			EncoderPath: deps.EncoderPath,
			Runner:      deps.Runner,
		},
	}
	r.cleaner = &storage.Cleaner{
		Dir:       snap.TempDir,
		Prefix:    session.TempFilePrefix,
		Retention: snap.TempRetention,
		Keep:      r.inUse,
	}
	r.saver = &storage.Saver{Trimmer: r.trimmer, Cleaner: r.cleaner}
	r.ctrl = session.New(session.Config{
		EncoderPath: deps.EncoderPath,
		OutputDir:   snap.TempDir,
		GracePeriod: snap.GracePeriod,
		Resolve:     func() platform.Kind { return deps.Platform },
		Display:     platform.Display(),
		Observer:    r.observe,
	}, deps.Spawner)
	return r
}

// AddObserver registers fn for session events. Call before recording.
func (r *Recorder) AddObserver(fn func(session.Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

func (r *Recorder) observe(e session.Event) {
	if r.deps.Metrics != nil {
		r.deps.Metrics.Observe(e)
	}
	if r.deps.Notifier != nil {
		r.deps.Notifier.Observe(e)
	}
	r.mu.Lock()
	observers := r.observers
	r.mu.Unlock()
	for _, fn := range observers {
		fn(e)
	}
}

// inUse reports files the cleaner must keep.
func (r *Recorder) inUse(path string) bool {
	if s := r.ctrl.Session(); s.Status.Busy() && s.OutputPath == path {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending != nil && r.pending.SessionID != r.saving && r.pending.Path == path
}

// StartCleanup begins periodic removal of stale temporary recordings.
func (r *Recorder) StartCleanup() {
	r.cleaner.Start()
}

// Start begins a recording. An unsaved recording stays pending until this
// one stops; after that its file is left to the temp cleanup.
func (r *Recorder) Start(opts capture.Options) (string, error) {
	if err := storage.EnsureDir(r.cfg.TempDir()); err != nil {
		return "", err
	}
	path, err := r.ctrl.Start(opts)
	if err != nil {
		return "", err
	}

	if limit := r.cfg.MaxRecording(); limit > 0 {
		r.mu.Lock()
		if r.autoStop != nil {
			r.autoStop.Stop()
		}
		r.autoStop = time.AfterFunc(limit, func() {
			slog.Info("maximum recording length reached, stopping", "limit", limit)
			r.Stop()
		})
		r.mu.Unlock()
	}
	return path, nil
}

// StartDefault starts a recording with the options derived from settings.
func (r *Recorder) StartDefault() (string, error) {
	return r.Start(r.cfg.RecordingOptions())
}

// Stop ends the current recording and keeps its artifact pending. Calling
// it with nothing recording is a no-op.
func (r *Recorder) Stop() session.Session {
	r.mu.Lock()
	if r.autoStop != nil {
		r.autoStop.Stop()
		r.autoStop = nil
	}
	r.mu.Unlock()

	before := r.ctrl.Status()
	s := r.ctrl.Stop()
	if !before.Busy() || s.StartedAt.IsZero() {
		return s
	}

	r.mu.Lock()
	if r.pending == nil || r.pending.SessionID != s.ID {
		r.pending = &Pending{
			SessionID: s.ID,
			Path:      s.OutputPath,
			Duration:  s.Duration(),
			Window:    trim.Full,
		}
	}
	r.mu.Unlock()
	return s
}

// Pending returns the recording awaiting save, if any.
func (r *Recorder) Pending() (Pending, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return Pending{}, false
	}
	return *r.pending, true
}

// SetTrim records the window to keep when the pending recording is saved.
// A positive duration is the media length as measured by the client and
// replaces the probe at save time.
func (r *Recorder) SetTrim(w trim.Window, duration time.Duration) error {
	if err := w.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return ErrNoPendingRecording
	}
	r.pending.Window = w
	if duration > 0 {
		r.pending.Duration = duration
		r.pending.measured = true
	}
	return nil
}

// Save trims the pending recording and copies it to target. An empty
// target means the configured save location; a directory gets a generated
// file name.
func (r *Recorder) Save(ctx context.Context, target string) (storage.SaveResult, error) {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.Lock()
	if r.pending == nil {
		r.mu.Unlock()
		return storage.SaveResult{}, ErrNoPendingRecording
	}
	p := *r.pending
	r.saving = p.SessionID
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.saving = ""
		r.mu.Unlock()
	}()

	settings := r.cfg.CurrentSettings()
	location := settings.SaveLocation
	if location == "" {
		location = storage.DefaultSaveLocation()
	}
	dst := storage.ResolveDestination(target, location, capture.ParseFormat(settings.Format), time.Now())

	total := r.probe(ctx, p)
	res, err := r.saver.Save(ctx, storage.SaveRequest{
		Source:      p.Path,
		Window:      p.Window,
		Duration:    total,
		Destination: dst,
	})
	r.observeSave(p, res, err)
	if err != nil {
		return res, fmt.Errorf("save recording: %w", err)
	}

	r.mu.Lock()
	if r.pending != nil && r.pending.SessionID == p.SessionID {
		r.pending = nil
	}
	r.mu.Unlock()

	if r.deps.Notifier != nil {
		r.deps.Notifier.RecordingSaved(p.SessionID, res.Path, total.Seconds())
	}
	return res, nil
}

// probe returns the recorded media duration, falling back to the session's
// wall-clock time when the encoder cannot report it.
func (r *Recorder) probe(ctx context.Context, p Pending) time.Duration {
	if p.Window.IsIdentity() || p.measured {
		return p.Duration
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	d, err := ffmpeg.ProbeDuration(ctx, r.deps.Runner, r.deps.EncoderPath, p.Path)
	if err != nil {
		slog.Warn("failed to probe recording duration, using wall clock", "path", p.Path, "error", err)
		return p.Duration
	}
	return d
}

func (r *Recorder) observeSave(p Pending, res storage.SaveResult, err error) {
	m := r.deps.Metrics
	if m == nil {
		return
	}
	m.ObserveSave(err)
	switch {
	case errors.Is(err, trim.ErrInvalidWindow):
		m.ObserveTrim(metrics.TrimError)
	case err != nil:
	case p.Window.IsIdentity():
		m.ObserveTrim(metrics.TrimSkipped)
	case res.Trimmed:
		m.ObserveTrim(metrics.TrimApplied)
	default:
		m.ObserveTrim(metrics.TrimFallback)
	}
}

// Discard deletes the pending recording.
func (r *Recorder) Discard() error {
	r.mu.Lock()
	p := r.pending
	r.pending = nil
	r.mu.Unlock()
	if p == nil {
		return ErrNoPendingRecording
	}
	if err := storage.Discard(p.Path); err != nil {
		return util.WrapError("discard recording", err)
	}
	slog.Info("recording discarded", "session", p.SessionID, "path", p.Path)
	return nil
}

// Devices lists capture devices for this host.
func (r *Recorder) Devices(ctx context.Context) devices.Devices {
	if r.deps.Lister == nil {
		return devices.Devices{}
	}
	return r.deps.Lister.List(ctx, r.deps.EncoderPath, r.deps.Platform)
}

// Session returns the current session.
func (r *Recorder) Session() session.Session {
	return r.ctrl.Session()
}

// Status summarises the recorder for clients.
func (r *Recorder) Status() types.RecordingStatus {
	s := r.ctrl.Session()
	st := types.RecordingStatus{
		SessionID:  s.ID,
		State:      string(s.Status),
		OutputPath: s.OutputPath,
		LastError:  s.LastError,
		Platform:   r.deps.Platform.String(),
	}
	if s.Status == session.StatusActive {
		st.Elapsed = util.FormatClock(s.Duration())
	}
	return st
}

// PendingStatus returns the pending recording for clients.
func (r *Recorder) PendingStatus() *types.PendingRecording {
	p, ok := r.Pending()
	if !ok {
		return nil
	}
	return &types.PendingRecording{
		SessionID: p.SessionID,
		Path:      p.Path,
		Duration:  p.Duration.Seconds(),
		TrimStart: p.Window.Start,
		TrimEnd:   p.Window.End,
	}
}

// Close stops any recording and background work.
func (r *Recorder) Close() {
	r.Stop()
	r.cleaner.Stop()
	if r.deps.Notifier != nil {
		r.deps.Notifier.Wait()
	}
}
