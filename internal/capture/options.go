// Package capture builds the encoder command line for a screen recording.
package capture

import "strings"

// Quality selects one of the encoding tiers in QualityPresets.
type Quality int

// Quality tiers, from fastest to highest fidelity.
const (
	QualityLow Quality = iota
	QualityMedium
	QualityHigh
	QualityUltra
)

// DefaultQuality is used when a quality setting is missing or unknown.
const DefaultQuality = QualityMedium

var qualityNames = map[Quality]string{
	QualityLow:    "low",
	QualityMedium: "medium",
	QualityHigh:   "high",
	QualityUltra:  "ultra",
}

func (q Quality) String() string {
	if name, ok := qualityNames[q]; ok {
		return name
	}
	return qualityNames[DefaultQuality]
}

// ParseQuality converts a settings value to a Quality.
func ParseQuality(s string) Quality {
	s = strings.ToLower(strings.TrimSpace(s))
	for q, name := range qualityNames {
		if name == s {
			return q
		}
	}
	return DefaultQuality
}

// Format is the output container.
type Format int

// Supported output containers.
const (
	FormatMP4 Format = iota
	FormatWebM
	FormatMKV
)

// DefaultFormat is used when a format setting is missing or unknown.
const DefaultFormat = FormatMP4

var formatNames = map[Format]string{
	FormatMP4:  "mp4",
	FormatWebM: "webm",
	FormatMKV:  "mkv",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return formatNames[DefaultFormat]
}

// Extension returns the file extension for the container, including the dot.
func (f Format) Extension() string {
	return "." + f.String()
}

// ParseFormat converts a settings value to a Format.
func ParseFormat(s string) Format {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")
	for f, name := range formatNames {
		if name == s {
			return f
		}
	}
	return DefaultFormat
}

// OverlayPosition is the corner the camera feed is composited into.
type OverlayPosition int

// Overlay corners.
const (
	TopLeft OverlayPosition = iota
	TopRight
	BottomLeft
	BottomRight
)

// DefaultOverlayPosition is used when a position setting is missing or unknown.
const DefaultOverlayPosition = BottomRight

var positionNames = map[OverlayPosition]string{
	TopLeft:     "top-left",
	TopRight:    "top-right",
	BottomLeft:  "bottom-left",
	BottomRight: "bottom-right",
}

func (p OverlayPosition) String() string {
	if name, ok := positionNames[p]; ok {
		return name
	}
	return positionNames[DefaultOverlayPosition]
}

// ParseOverlayPosition converts a settings value to an OverlayPosition.
func ParseOverlayPosition(s string) OverlayPosition {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, name := range positionNames {
		if name == s {
			return p
		}
	}
	return DefaultOverlayPosition
}

// Options describes a single recording attempt. Device references are opaque
// platform identifiers: a DirectShow friendly name on Windows, an AVFoundation
// index or name on macOS, a V4L2 path or PulseAudio source on Linux.
type Options struct {
	WithCamera      bool
	WithAudio       bool
	WithSystemAudio bool
	CameraDevice    string
	AudioDevice     string
	Quality         Quality
	Format          Format
	CameraPosition  OverlayPosition

	// Display is the X11 display captured on Linux. Empty means :0.0.
	Display string

	// OutputPath is the file the encoder writes to.
	OutputPath string
}

// HasCamera reports whether a camera input was requested with a device.
func (o *Options) HasCamera() bool {
	return o.WithCamera && o.CameraDevice != ""
}

// HasAudio reports whether a microphone input was requested with a device.
func (o *Options) HasAudio() bool {
	return o.WithAudio && o.AudioDevice != ""
}
