package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/oszuidwest/zwfm-capture/internal/capture"
	"github.com/oszuidwest/zwfm-capture/internal/devices"
	"github.com/oszuidwest/zwfm-capture/internal/platform"
	"github.com/oszuidwest/zwfm-capture/internal/session"
)

type fakeProcess struct {
	once sync.Once
	done chan struct{}
}

func (p *fakeProcess) Pid() int              { return 7 }
func (p *fakeProcess) Quit() error           { p.once.Do(func() { close(p.done) }); return nil }
func (p *fakeProcess) Kill() error           { return p.Quit() }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }
func (p *fakeProcess) Err() error            { return nil }
func (p *fakeProcess) Stderr() string        { return "" }

type fakeSpawner struct{}

func (fakeSpawner) Spawn(cmd capture.Command) (session.Process, error) {
	args := cmd.Args()
	if err := os.WriteFile(args[len(args)-1], []byte("recording"), 0o644); err != nil {
		return nil, err
	}
	return &fakeProcess{done: make(chan struct{})}, nil
}

// fakeRunner answers probes with a 100 second duration, writes trim
// outputs, and fails everything when err is set.
type fakeRunner struct {
	err error
}

func (r fakeRunner) Run(_ context.Context, cmd capture.Command) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	args := cmd.Args()
	joined := strings.Join(args, " ")
	switch {
	case strings.Contains(joined, "-c copy"):
		return "", os.WriteFile(args[len(args)-1], []byte("trimmed"), 0o644)
	case len(args) == 3 && args[1] == "-i":
		return "  Duration: 00:01:40.00, start: 0.000000", errors.New("exit status 1")
	}
	return "", nil
}

func testDeps(t *testing.T, runner fakeRunner) (*Dependencies, string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	cfg := map[string]any{
		"recorder": map[string]any{"temp_dir": filepath.Join(dir, "tmp"), "grace_period_ms": 50},
		"settings": map[string]any{"save_location": filepath.Join(dir, "saved")},
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfgPath, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return &Dependencies{
		Spawner: fakeSpawner{},
		Runner:  runner,
		Lister: &devices.Lister{
			Exec: func(context.Context, string, ...string) ([]byte, error) {
				return []byte("1\talsa_input.usb-mic\tmodule-alsa-card.c\ts16le 2ch 48000Hz\tRUNNING\n"), nil
			},
			Glob: func(string) ([]string, error) { return []string{"/dev/video0"}, nil },
		},
		Platform:    platform.Linux,
		EncoderPath: "ffmpeg",
	}, cfgPath
}

func run(t *testing.T, deps *Dependencies, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(deps)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	cmd := NewRootCmd(DefaultDependencies())
	for _, name := range []string{"serve", "record", "trim", "devices", "doctor", "version"} {
		if sub, _, err := cmd.Find([]string{name}); err != nil || sub.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
	for _, flag := range []string{"config", "log-level", "log-file"} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing persistent flag --%s", flag)
		}
	}
	if cmd.RunE == nil {
		t.Error("root command should serve by default")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, &Dependencies{}, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "zwfm-capture dev") {
		t.Errorf("version output = %q", out)
	}
}

func TestInvalidLogLevel(t *testing.T) {
	deps, cfgPath := testDeps(t, fakeRunner{})
	if _, err := run(t, deps, "devices", "--config", cfgPath, "--log-level", "loud"); err == nil {
		t.Error("invalid log level accepted")
	}
}

func TestDevicesCommand(t *testing.T) {
	deps, cfgPath := testDeps(t, fakeRunner{})
	out, err := run(t, deps, "devices", "--json", "--config", cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	var got devices.Devices
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if len(got.Cameras) != 1 || got.Cameras[0].ID != "/dev/video0" {
		t.Errorf("cameras = %+v", got.Cameras)
	}
	if len(got.Microphones) != 1 || got.Microphones[0].ID != "alsa_input.usb-mic" {
		t.Errorf("microphones = %+v", got.Microphones)
	}
}

func TestTrimCommand(t *testing.T) {
	deps, cfgPath := testDeps(t, fakeRunner{})
	src := filepath.Join(t.TempDir(), "talk.mp4")
	if err := os.WriteFile(src, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, deps, "trim", src, "--start", "25", "--end", "75", "--config", cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "keeping 50.00s from 25.00s") {
		t.Errorf("output missing bounds:\n%s", out)
	}
	want := filepath.Join(filepath.Dir(src), "talk_trimmed.mp4")
	if !strings.HasSuffix(strings.TrimSpace(out), want) {
		t.Errorf("output = %q, want trimmed path %s", out, want)
	}

	if _, err := run(t, deps, "trim", "--config", cfgPath); err == nil {
		t.Error("trim without a file should fail")
	}
}

func TestRecordCommand(t *testing.T) {
	deps, cfgPath := testDeps(t, fakeRunner{})
	dst := filepath.Join(t.TempDir(), "clip.mp4")

	out, err := run(t, deps, "record", "--duration", "50ms", "--trim-start", "10", "--trim-end", "90",
		"--with-audio=false", "-o", dst, "--config", cfgPath)
	if err != nil {
		t.Fatalf("record: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Saved "+dst+" (trimmed)") {
		t.Errorf("output:\n%s", out)
	}
	if data, err := os.ReadFile(dst); err != nil || string(data) != "trimmed" {
		t.Errorf("saved file = %q, %v", data, err)
	}
}

func TestDoctorReportsFailures(t *testing.T) {
	deps, cfgPath := testDeps(t, fakeRunner{err: errors.New("executable file not found")})
	out, err := run(t, deps, "doctor", "--config", cfgPath)
	if !errors.Is(err, errChecksFailed) {
		t.Errorf("doctor error = %v", err)
	}
	if !strings.Contains(out, "[FAIL] Encoder") {
		t.Errorf("output:\n%s", out)
	}

	deps, cfgPath = testDeps(t, fakeRunner{})
	if out, err := run(t, deps, "doctor", "--config", cfgPath); err != nil || !strings.Contains(out, "All checks passed") {
		t.Errorf("doctor = %v\n%s", err, out)
	}
}
