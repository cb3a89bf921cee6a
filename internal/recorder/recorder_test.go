package recorder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-capture/internal/capture"
	"github.com/oszuidwest/zwfm-capture/internal/config"
	"github.com/oszuidwest/zwfm-capture/internal/platform"
	"github.com/oszuidwest/zwfm-capture/internal/session"
	"github.com/oszuidwest/zwfm-capture/internal/trim"
)

// fakeProcess exits as soon as it is asked to quit.
type fakeProcess struct {
	once sync.Once
	done chan struct{}
}

func (p *fakeProcess) Pid() int              { return 42 }
func (p *fakeProcess) Quit() error           { p.once.Do(func() { close(p.done) }); return nil }
func (p *fakeProcess) Kill() error           { return p.Quit() }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }
func (p *fakeProcess) Err() error            { return nil }
func (p *fakeProcess) Stderr() string        { return "" }

// fakeSpawner writes a small file at the command's output path.
type fakeSpawner struct{}

func (fakeSpawner) Spawn(cmd capture.Command) (session.Process, error) {
	args := cmd.Args()
	if err := os.WriteFile(args[len(args)-1], []byte("recording"), 0o644); err != nil {
		return nil, err
	}
	return &fakeProcess{done: make(chan struct{})}, nil
}

// fakeRunner answers duration probes and "trims" by writing the output file.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	fail  bool
}

func (r *fakeRunner) Run(_ context.Context, cmd capture.Command) (string, error) {
	args := cmd.Args()
	r.mu.Lock()
	r.calls = append(r.calls, args)
	r.mu.Unlock()
	if !strings.Contains(strings.Join(args, " "), "-c copy") {
		return "  Duration: 00:01:40.00, start: 0.000000, bitrate: 1 kb/s", errors.New("exit status 1")
	}
	if r.fail {
		return "boom", errors.New("exit status 1")
	}
	out := args[len(args)-1]
	return "", os.WriteFile(out, []byte("trimmed"), 0o644)
}

func newTestRecorder(t *testing.T, runner *fakeRunner) (*Recorder, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.New(filepath.Join(dir, "config.json"))
	cfg.Recorder.TempDir = filepath.Join(dir, "tmp")
	cfg.Recorder.GracePeriodMs = 50
	cfg.Settings.SaveLocation = filepath.Join(dir, "saved")

	r := New(cfg, Deps{
		Spawner:     fakeSpawner{},
		Runner:      runner,
		EncoderPath: "ffmpeg",
		Platform:    platform.Linux,
	})
	t.Cleanup(r.Close)
	return r, cfg
}

func record(t *testing.T, r *Recorder) string {
	t.Helper()
	path, err := r.Start(capture.Options{Format: capture.FormatMP4})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s := r.Stop(); s.Status != session.StatusStopped {
		t.Fatalf("Stop() status = %s, want stopped", s.Status)
	}
	return path
}

func TestSaveWithoutTrimCopiesAndCleansUp(t *testing.T) {
	runner := &fakeRunner{}
	r, cfg := newTestRecorder(t, runner)
	src := record(t, r)

	p, ok := r.Pending()
	if !ok || p.Path != src || !p.Window.IsIdentity() {
		t.Fatalf("Pending() = %+v, %v", p, ok)
	}

	res, err := r.Save(context.Background(), "")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if res.Trimmed {
		t.Error("identity window should not trim")
	}
	if filepath.Dir(res.Path) != cfg.Settings.SaveLocation {
		t.Errorf("saved to %s, want directory %s", res.Path, cfg.Settings.SaveLocation)
	}
	if !strings.HasPrefix(filepath.Base(res.Path), "Recording_") {
		t.Errorf("unexpected file name %s", res.Path)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("temporary recording still present: %v", err)
	}
	if len(runner.calls) != 0 {
		t.Errorf("encoder invoked %d times for an untrimmed save", len(runner.calls))
	}
	if _, ok := r.Pending(); ok {
		t.Error("pending recording should be cleared after save")
	}
}

func TestSaveWithTrim(t *testing.T) {
	runner := &fakeRunner{}
	r, _ := newTestRecorder(t, runner)
	record(t, r)

	if err := r.SetTrim(trim.Window{Start: 0.25, End: 0.75}, 0); err != nil {
		t.Fatalf("SetTrim() error = %v", err)
	}
	dst := filepath.Join(t.TempDir(), "clip.mp4")
	res, err := r.Save(context.Background(), dst)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !res.Trimmed || res.Path != dst {
		t.Errorf("Save() = %+v", res)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "trimmed" {
		t.Errorf("saved content = %q, %v", data, err)
	}

	trimCall := strings.Join(runner.calls[len(runner.calls)-1], " ")
	if !strings.Contains(trimCall, "-ss 25 -t 50") {
		t.Errorf("trim used wrong bounds: %s", trimCall)
	}
}

func TestSaveUsesMeasuredDuration(t *testing.T) {
	runner := &fakeRunner{}
	r, _ := newTestRecorder(t, runner)
	record(t, r)

	if err := r.SetTrim(trim.FromPercent(50, 100), 10*time.Second); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Save(context.Background(), filepath.Join(t.TempDir(), "clip.mp4")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("encoder calls = %d, want only the trim", len(runner.calls))
	}
	if got := strings.Join(runner.calls[0], " "); !strings.Contains(got, "-ss 5 -t 5") {
		t.Errorf("trim used wrong bounds: %s", got)
	}
}

func TestSaveFallsBackWhenTrimFails(t *testing.T) {
	runner := &fakeRunner{fail: true}
	r, _ := newTestRecorder(t, runner)
	record(t, r)

	if err := r.SetTrim(trim.FromPercent(10, 90), 0); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(t.TempDir(), "clip.mp4")
	res, err := r.Save(context.Background(), dst)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if res.Trimmed {
		t.Error("failed trim reported as trimmed")
	}
	if data, _ := os.ReadFile(dst); string(data) != "recording" {
		t.Errorf("saved content = %q, want the untrimmed recording", data)
	}
}

func TestNothingPending(t *testing.T) {
	r, _ := newTestRecorder(t, &fakeRunner{})

	if s := r.Stop(); s.Status != session.StatusIdle {
		t.Errorf("Stop() when idle = %s", s.Status)
	}
	if _, err := r.Save(context.Background(), ""); !errors.Is(err, ErrNoPendingRecording) {
		t.Errorf("Save() error = %v", err)
	}
	if err := r.Discard(); !errors.Is(err, ErrNoPendingRecording) {
		t.Errorf("Discard() error = %v", err)
	}
	if err := r.SetTrim(trim.Full, 0); !errors.Is(err, ErrNoPendingRecording) {
		t.Errorf("SetTrim() error = %v", err)
	}
	if p := r.PendingStatus(); p != nil {
		t.Errorf("PendingStatus() = %+v", p)
	}
}

func TestSetTrimRejectsInvalidWindow(t *testing.T) {
	r, _ := newTestRecorder(t, &fakeRunner{})
	record(t, r)

	if err := r.SetTrim(trim.Window{Start: 0.8, End: 0.2}, 0); !errors.Is(err, trim.ErrInvalidWindow) {
		t.Errorf("SetTrim() error = %v", err)
	}
}

func TestDiscard(t *testing.T) {
	r, _ := newTestRecorder(t, &fakeRunner{})
	src := record(t, r)

	if err := r.Discard(); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("recording still present after discard: %v", err)
	}
}

func TestStatus(t *testing.T) {
	r, _ := newTestRecorder(t, &fakeRunner{})
	if st := r.Status(); st.State != "idle" || st.Platform != "linux" {
		t.Errorf("Status() = %+v", st)
	}

	if _, err := r.Start(capture.Options{}); err != nil {
		t.Fatal(err)
	}
	if st := r.Status(); st.State != "active" || st.Elapsed == "" {
		t.Errorf("Status() while recording = %+v", st)
	}
	if _, err := r.Start(capture.Options{}); !errors.Is(err, session.ErrSessionBusy) {
		t.Errorf("second Start() error = %v", err)
	}
	r.Stop()
	if p := r.PendingStatus(); p == nil || p.TrimEnd != 1 {
		t.Errorf("PendingStatus() = %+v", p)
	}
}

func TestMaxRecordingStopsAutomatically(t *testing.T) {
	r, cfg := newTestRecorder(t, &fakeRunner{})
	cfg.Recorder.MaxRecordingSecs = 1

	stopped := make(chan struct{})
	r.AddObserver(func(e session.Event) {
		if e.Type == session.EventStopped {
			close(stopped)
		}
	})
	if _, err := r.Start(capture.Options{}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("recording was not stopped at the limit")
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := r.Pending(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("auto-stopped recording should be pending")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
