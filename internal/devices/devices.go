// Package devices enumerates cameras and microphones the encoder can capture
// from.
package devices

import (
	"context"
	"log/slog"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/oszuidwest/zwfm-capture/internal/platform"
)

// Device is a capture device as the encoder addresses it.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Devices groups the available inputs.
type Devices struct {
	Cameras     []Device `json:"cameras"`
	Microphones []Device `json:"microphones"`
}

// ExecFunc runs a command and returns its combined output.
type ExecFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execCombined(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Lister enumerates devices for one platform.
type Lister struct {
	Exec ExecFunc
	// Glob lists device nodes; used for Linux cameras.
	Glob func(pattern string) ([]string, error)
}

// NewLister returns a lister that runs real commands.
func NewLister() *Lister {
	return &Lister{Exec: execCombined, Glob: filepath.Glob}
}

type listing struct {
	cameras     func(l *Lister, ctx context.Context, encoderPath string) []Device
	microphones func(l *Lister, ctx context.Context, encoderPath string) []Device
}

var listings = map[platform.Kind]listing{
	platform.Windows: {
		cameras:     encoderListing(dshowArgs, func(out string) []Device { return ParseDShow(out).Cameras }),
		microphones: encoderListing(dshowArgs, func(out string) []Device { return ParseDShow(out).Microphones }),
	},
	platform.MacOS: {
		cameras:     encoderListing(avfoundationArgs, func(out string) []Device { return ParseAVFoundation(out).Cameras }),
		microphones: encoderListing(avfoundationArgs, func(out string) []Device { return ParseAVFoundation(out).Microphones }),
	},
	platform.Linux: {
		cameras:     (*Lister).videoNodes,
		microphones: (*Lister).pulseSources,
	},
}

var (
	dshowArgs        = []string{"-hide_banner", "-f", "dshow", "-list_devices", "true", "-i", "dummy"}
	avfoundationArgs = []string{"-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", ""}
)

// encoderListing runs the encoder's device listing. The encoder always exits
// non-zero here, so output is parsed whenever there is any.
func encoderListing(args []string, parse func(string) []Device) func(*Lister, context.Context, string) []Device {
	return func(l *Lister, ctx context.Context, encoderPath string) []Device {
		out, err := l.Exec(ctx, encoderPath, args...)
		if err != nil && len(out) == 0 {
			slog.Error("failed to list capture devices", "encoder", encoderPath, "error", err)
			return nil
		}
		return parse(string(out))
	}
}

// List returns the devices available on kind. Failures yield empty lists.
func (l *Lister) List(ctx context.Context, encoderPath string, kind platform.Kind) Devices {
	lst, ok := listings[kind]
	if !ok {
		slog.Warn("device listing not supported on this platform", "platform", kind)
		return Devices{}
	}
	return Devices{
		Cameras:     lst.cameras(l, ctx, encoderPath),
		Microphones: lst.microphones(l, ctx, encoderPath),
	}
}

var (
	dshowDevicePattern = regexp.MustCompile(`\[dshow[^\]]*\]\s*"([^"]+)"\s*(?:\((video|audio)\))?`)
	avfDevicePattern   = regexp.MustCompile(`\[AVFoundation[^\]]*\]\s*\[(\d+)\]\s*(.+)`)
)

// ParseDShow parses `-f dshow -list_devices true` output. Both the sectioned
// layout of older encoders and the per-line "(video)"/"(audio)" suffix of
// newer ones are understood. IDs are bare names; the capture backend adds
// the video= or audio= prefix.
func ParseDShow(output string) Devices {
	var d Devices
	section := ""
	for line := range strings.Lines(output) {
		switch {
		case strings.Contains(line, "DirectShow video devices"):
			section = "video"
			continue
		case strings.Contains(line, "DirectShow audio devices"):
			section = "audio"
			continue
		case strings.Contains(line, "Alternative name"):
			continue
		}
		m := dshowDevicePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		kind := m[2]
		if kind == "" {
			kind = section
		}
		dev := Device{ID: m[1], Name: m[1]}
		switch kind {
		case "video":
			d.Cameras = append(d.Cameras, dev)
		case "audio":
			d.Microphones = append(d.Microphones, dev)
		}
	}
	return d
}

// ParseAVFoundation parses `-f avfoundation -list_devices true` output.
// Screen capture entries are not cameras and are skipped.
func ParseAVFoundation(output string) Devices {
	var d Devices
	section := ""
	for line := range strings.Lines(output) {
		switch {
		case strings.Contains(line, "AVFoundation video devices:"):
			section = "video"
			continue
		case strings.Contains(line, "AVFoundation audio devices:"):
			section = "audio"
			continue
		}
		m := avfDevicePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[2])
		switch section {
		case "video":
			if strings.HasPrefix(name, "Capture screen") {
				continue
			}
			d.Cameras = append(d.Cameras, Device{ID: m[1], Name: name})
		case "audio":
			d.Microphones = append(d.Microphones, Device{ID: m[1], Name: name})
		}
	}
	return d
}

func (l *Lister) videoNodes(_ context.Context, _ string) []Device {
	nodes, err := l.Glob("/dev/video*")
	if err != nil {
		slog.Error("failed to list video devices", "error", err)
		return nil
	}
	sort.Strings(nodes)
	devices := make([]Device, 0, len(nodes))
	for _, n := range nodes {
		devices = append(devices, Device{ID: n, Name: filepath.Base(n)})
	}
	return devices
}

func (l *Lister) pulseSources(ctx context.Context, _ string) []Device {
	out, err := l.Exec(ctx, "pactl", "list", "short", "sources")
	if err != nil {
		slog.Error("failed to list pulse sources", "error", err)
		return []Device{{ID: "default", Name: "Default"}}
	}
	devices := ParsePulseSources(string(out))
	if len(devices) == 0 {
		return []Device{{ID: "default", Name: "Default"}}
	}
	return devices
}

// ParsePulseSources parses `pactl list short sources`. Monitor sources
// capture playback rather than a microphone and are skipped.
func ParsePulseSources(output string) []Device {
	var devices []Device
	for line := range strings.Lines(output) {
		fields := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
		if len(fields) < 2 || fields[1] == "" {
			continue
		}
		name := fields[1]
		if strings.HasSuffix(name, ".monitor") {
			continue
		}
		devices = append(devices, Device{ID: name, Name: name})
	}
	return devices
}
