package capture

import (
	"fmt"
	"strconv"
)

// QualityPreset fixes the encoder settings for one quality tier.
type QualityPreset struct {
	Preset    string // x264 speed preset
	CRF       int
	FrameRate int
	Size      string
	CPUUsed   int // libvpx speed, used instead of Preset for WebM
}

// QualityPresets maps quality tiers to their encoder settings.
var QualityPresets = map[Quality]QualityPreset{
	QualityLow:    {Preset: "ultrafast", CRF: 28, FrameRate: 15, Size: "1280x720", CPUUsed: 8},
	QualityMedium: {Preset: "fast", CRF: 23, FrameRate: 30, Size: "1920x1080", CPUUsed: 5},
	QualityHigh:   {Preset: "medium", CRF: 18, FrameRate: 60, Size: "1920x1080", CPUUsed: 2},
	QualityUltra:  {Preset: "slow", CRF: 16, FrameRate: 30, Size: "3840x2160", CPUUsed: 0},
}

// FormatPreset fixes the codecs written into a container.
type FormatPreset struct {
	VideoCodec  string
	AudioCodec  string
	PixelFormat string
	VP9         bool
}

// FormatPresets maps output containers to their codecs.
var FormatPresets = map[Format]FormatPreset{
	FormatMP4:  {VideoCodec: "libx264", AudioCodec: "aac", PixelFormat: "yuv420p"},
	FormatMKV:  {VideoCodec: "libx264", AudioCodec: "aac", PixelFormat: "yuv420p"},
	FormatWebM: {VideoCodec: "libvpx-vp9", AudioCodec: "libopus", PixelFormat: "yuv420p", VP9: true},
}

// Camera overlay geometry.
const (
	OverlayWidth  = 200
	OverlayHeight = 150
	OverlayMargin = 10
)

// overlayOffsets maps corners to the overlay filter's x:y expression.
var overlayOffsets = map[OverlayPosition]string{
	TopLeft:     fmt.Sprintf("%d:%d", OverlayMargin, OverlayMargin),
	TopRight:    fmt.Sprintf("W-w-%d:%d", OverlayMargin, OverlayMargin),
	BottomLeft:  fmt.Sprintf("%d:H-h-%d", OverlayMargin, OverlayMargin),
	BottomRight: fmt.Sprintf("W-w-%d:H-h-%d", OverlayMargin, OverlayMargin),
}

// qualityPreset returns the preset for q, falling back to DefaultQuality.
func qualityPreset(q Quality) QualityPreset {
	if p, ok := QualityPresets[q]; ok {
		return p
	}
	return QualityPresets[DefaultQuality]
}

// formatPreset returns the preset for f, falling back to DefaultFormat.
func formatPreset(f Format) FormatPreset {
	if p, ok := FormatPresets[f]; ok {
		return p
	}
	return FormatPresets[DefaultFormat]
}

// OverlayFilter returns the filter graph that scales input 1 and composites it
// onto input 0 at the given corner.
func OverlayFilter(pos OverlayPosition) string {
	offset, ok := overlayOffsets[pos]
	if !ok {
		offset = overlayOffsets[DefaultOverlayPosition]
	}
	return fmt.Sprintf("[1:v]scale=%d:%d[pip];[0:v][pip]overlay=%s", OverlayWidth, OverlayHeight, offset)
}

// EncodeArgs returns the encoding segment for a quality tier and container.
func EncodeArgs(q Quality, f Format) []string {
	qp := qualityPreset(q)
	fp := formatPreset(f)

	args := []string{"-c:v", fp.VideoCodec}
	if fp.VP9 {
		args = append(args,
			"-deadline", "realtime",
			"-cpu-used", strconv.Itoa(qp.CPUUsed),
			"-crf", strconv.Itoa(qp.CRF),
			"-b:v", "0",
		)
	} else {
		args = append(args,
			"-preset", qp.Preset,
			"-crf", strconv.Itoa(qp.CRF),
		)
	}
	args = append(args,
		"-r", strconv.Itoa(qp.FrameRate),
		"-s", qp.Size,
		"-pix_fmt", fp.PixelFormat,
		"-c:a", fp.AudioCodec,
	)
	return args
}
