package capture

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/oszuidwest/zwfm-capture/internal/platform"
)

var allKinds = []platform.Kind{platform.Windows, platform.MacOS, platform.Linux, platform.Unknown}

// allOptions enumerates every combination of the boolean toggles, device
// presence, quality, format and overlay position.
func allOptions() []Options {
	var out []Options
	for _, withCamera := range []bool{false, true} {
		for _, withAudio := range []bool{false, true} {
			for _, withSystem := range []bool{false, true} {
				for _, cam := range []string{"", "HD Webcam"} {
					for _, mic := range []string{"", "Microphone (USB)"} {
						for q := range QualityPresets {
							for f := range FormatPresets {
								for p := range overlayOffsets {
									out = append(out, Options{
										WithCamera:      withCamera,
										WithAudio:       withAudio,
										WithSystemAudio: withSystem,
										CameraDevice:    cam,
										AudioDevice:     mic,
										Quality:         q,
										Format:          f,
										CameraPosition:  p,
										OutputPath:      "/tmp/recording_1" + f.Extension(),
									})
								}
							}
						}
					}
				}
			}
		}
	}
	return out
}

// inputIndexes returns the positions of every "-i" flag.
func inputIndexes(args []string) []int {
	var idx []int
	for i, a := range args {
		if a == "-i" {
			idx = append(idx, i)
		}
	}
	return idx
}

func TestBuildSegmentOrder(t *testing.T) {
	for _, kind := range allKinds {
		for _, opts := range allOptions() {
			cmd, err := Build(opts, kind, "ffmpeg")
			if err != nil {
				t.Fatalf("%v %+v: unexpected error %v", kind, opts, err)
			}
			if cmd.Len() == 0 {
				t.Fatalf("%v %+v: empty command", kind, opts)
			}
			args := cmd.Args()

			backend := BackendFor(kind)
			wantInputs := 1
			if opts.HasCamera() && backend.Camera != nil {
				wantInputs++
			}
			if opts.HasAudio() && backend.Audio != nil {
				wantInputs++
			}
			inputs := inputIndexes(args)
			if len(inputs) != wantInputs {
				t.Fatalf("%v %+v: got %d inputs, want %d: %v", kind, opts, len(inputs), wantInputs, args)
			}

			filter := slices.Index(args, "-filter_complex")
			codec := slices.Index(args, "-c:v")
			overwrite := slices.Index(args, "-y")

			if codec < inputs[len(inputs)-1] {
				t.Errorf("%v: encoding segment precedes an input: %v", kind, args)
			}
			if filter >= 0 && (filter < inputs[len(inputs)-1] || filter > codec) {
				t.Errorf("%v: filter graph out of order: %v", kind, args)
			}
			if overwrite != len(args)-2 || args[len(args)-1] != opts.OutputPath {
				t.Errorf("%v: output segment must close the command: %v", kind, args)
			}
		}
	}
}

func TestBuildNoFilterWithoutCamera(t *testing.T) {
	for _, kind := range allKinds {
		for _, opts := range allOptions() {
			if opts.WithCamera {
				continue
			}
			cmd, err := Build(opts, kind, "ffmpeg")
			if err != nil {
				t.Fatal(err)
			}
			if slices.Contains(cmd.Args(), "-filter_complex") {
				t.Fatalf("%v: filter graph emitted without camera: %v", kind, cmd.Args())
			}
		}
	}
}

func TestBuildCameraWithoutDeviceSkipsOverlay(t *testing.T) {
	opts := Options{WithCamera: true, OutputPath: "out.mp4"}
	cmd, err := Build(opts, platform.Windows, "ffmpeg")
	if err != nil {
		t.Fatal(err)
	}
	if slices.Contains(cmd.Args(), "-filter_complex") {
		t.Errorf("filter graph emitted for camera without device: %v", cmd.Args())
	}
}

func TestBuildUnknownPlatform(t *testing.T) {
	opts := Options{
		WithCamera:   true,
		CameraDevice: "cam",
		WithAudio:    true,
		AudioDevice:  "mic",
		OutputPath:   "out.mp4",
	}
	cmd, err := Build(opts, platform.Unknown, "ffmpeg")
	if err != nil {
		t.Fatal(err)
	}
	args := cmd.Args()
	if !slices.Contains(args, "gdigrab") {
		t.Errorf("unknown platform should fall back to gdigrab: %v", args)
	}
	if slices.Contains(args, "-filter_complex") {
		t.Errorf("unknown platform has no camera backend, filter must be skipped: %v", args)
	}
	if n := len(inputIndexes(args)); n != 1 {
		t.Errorf("got %d inputs, want 1", n)
	}
}

func TestBuildWindowsFull(t *testing.T) {
	opts := Options{
		WithCamera:     true,
		WithAudio:      true,
		CameraDevice:   "Integrated Camera",
		AudioDevice:    "Microphone Array",
		Quality:        QualityHigh,
		Format:         FormatMP4,
		CameraPosition: TopLeft,
		OutputPath:     `C:\temp\recording_1.mp4`,
	}
	cmd, err := Build(opts, platform.Windows, `C:\ffmpeg\ffmpeg.exe`)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		`C:\ffmpeg\ffmpeg.exe`,
		"-hide_banner", "-loglevel", "warning",
		"-f", "gdigrab", "-framerate", "30", "-i", "desktop",
		"-f", "dshow", "-i", "video=Integrated Camera",
		"-f", "dshow", "-i", "audio=Microphone Array",
		"-filter_complex", "[1:v]scale=200:150[pip];[0:v][pip]overlay=10:10",
		"-c:v", "libx264", "-preset", "medium", "-crf", "18",
		"-r", "60", "-s", "1920x1080", "-pix_fmt", "yuv420p", "-c:a", "aac",
		"-y", `C:\temp\recording_1.mp4`,
	}
	if got := cmd.Argv(); !slices.Equal(got, want) {
		t.Errorf("Argv() =\n%v\nwant\n%v", got, want)
	}
}

func TestBuildPlatformInputs(t *testing.T) {
	opts := Options{
		WithCamera:   true,
		WithAudio:    true,
		CameraDevice: "0",
		AudioDevice:  "1",
		Display:      ":1.0",
		OutputPath:   "out.mkv",
	}
	tests := []struct {
		kind   platform.Kind
		inputs []string
	}{
		{platform.Windows, []string{"desktop", "video=0", "audio=1"}},
		{platform.MacOS, []string{"1:none", "0", ":1"}},
		{platform.Linux, []string{":1.0", "0", "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			cmd, err := Build(opts, tt.kind, "ffmpeg")
			if err != nil {
				t.Fatal(err)
			}
			args := cmd.Args()
			var got []string
			for _, i := range inputIndexes(args) {
				got = append(got, args[i+1])
			}
			if !slices.Equal(got, tt.inputs) {
				t.Errorf("inputs = %v, want %v", got, tt.inputs)
			}
		})
	}
}

func TestBuildRejectsQuotedDevice(t *testing.T) {
	tests := []Options{
		{WithCamera: true, CameraDevice: `Cam" -i evil`},
		{WithAudio: true, AudioDevice: `Mic'`},
		{WithAudio: true, AudioDevice: "Mic\n"},
	}
	for _, opts := range tests {
		for _, kind := range []platform.Kind{platform.Windows, platform.MacOS, platform.Linux} {
			cmd, err := Build(opts, kind, "ffmpeg")
			if !errors.Is(err, ErrUnsafeDeviceReference) {
				t.Errorf("%v %+v: err = %v, want ErrUnsafeDeviceReference", kind, opts, err)
			}
			if cmd.Len() != 0 {
				t.Errorf("%v: command produced for unsafe device: %v", kind, cmd)
			}
		}
	}
}

func TestBuildIgnoresUnusedUnsafeDevice(t *testing.T) {
	// A device that is not going to be embedded is not validated.
	opts := Options{WithCamera: false, CameraDevice: `bad"name`, OutputPath: "out.mp4"}
	if _, err := Build(opts, platform.Windows, "ffmpeg"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBuildSystemAudioSkipped(t *testing.T) {
	opts := Options{WithSystemAudio: true, OutputPath: "out.mp4"}
	cmd, err := Build(opts, platform.Linux, "ffmpeg")
	if err != nil {
		t.Fatal(err)
	}
	if len(cmd.Skipped) != 1 || !errors.Is(cmd.Skipped[0], ErrSystemAudioUnsupported) {
		t.Errorf("Skipped = %v, want [ErrSystemAudioUnsupported]", cmd.Skipped)
	}
	if n := len(inputIndexes(cmd.Args())); n != 1 {
		t.Errorf("system audio must not add an input, got %d inputs", n)
	}
}

func TestOverlayFilter(t *testing.T) {
	tests := map[OverlayPosition]string{
		TopLeft:     "overlay=10:10",
		TopRight:    "overlay=W-w-10:10",
		BottomLeft:  "overlay=10:H-h-10",
		BottomRight: "overlay=W-w-10:H-h-10",
	}
	for pos, suffix := range tests {
		got := OverlayFilter(pos)
		if !strings.HasPrefix(got, "[1:v]scale=200:150[pip];[0:v][pip]") || !strings.HasSuffix(got, suffix) {
			t.Errorf("OverlayFilter(%v) = %q", pos, got)
		}
	}
}

func TestEncodeArgsWebM(t *testing.T) {
	args := EncodeArgs(QualityLow, FormatWebM)
	if !slices.Contains(args, "libvpx-vp9") || !slices.Contains(args, "libopus") {
		t.Errorf("webm must use vp9/opus: %v", args)
	}
	if slices.Contains(args, "-preset") {
		t.Errorf("webm must not carry an x264 preset: %v", args)
	}
}

func TestParseSettings(t *testing.T) {
	if ParseQuality("ULTRA") != QualityUltra || ParseQuality("bogus") != QualityMedium {
		t.Error("ParseQuality mismatch")
	}
	if ParseFormat(".webm") != FormatWebM || ParseFormat("avi") != FormatMP4 {
		t.Error("ParseFormat mismatch")
	}
	if ParseOverlayPosition("top-right") != TopRight || ParseOverlayPosition("") != BottomRight {
		t.Error("ParseOverlayPosition mismatch")
	}
}

func TestCommandImmutable(t *testing.T) {
	cmd := NewCommand("ffmpeg", "-i", "a")
	args := cmd.Args()
	args[0] = "changed"
	if cmd.Args()[0] != "-i" {
		t.Error("Args() must return a copy")
	}
	if got := NewCommand("ffmpeg", "-i", "my file.mp4").String(); got != `ffmpeg -i "my file.mp4"` {
		t.Errorf("String() = %s", got)
	}
}
