package ffmpeg

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/oszuidwest/zwfm-capture/internal/platform"
)

// DefaultBinary is used when no bundled or PATH binary can be found.
const DefaultBinary = "ffmpeg"

// BundledDir is where per-platform binaries ship, relative to the app directory.
const BundledDir = "resources/ffmpeg"

// bundledPaths maps platforms to their bundled binary below BundledDir.
var bundledPaths = map[platform.Kind]string{
	platform.Windows: filepath.Join("win", "ffmpeg.exe"),
	platform.MacOS:   filepath.Join("mac", "ffmpeg"),
	platform.Linux:   filepath.Join("linux", "ffmpeg"),
	platform.Unknown: "ffmpeg",
}

// BundledPath returns the bundled binary location for kind below baseDir.
func BundledPath(kind platform.Kind, baseDir string) string {
	rel, ok := bundledPaths[kind]
	if !ok {
		rel = bundledPaths[platform.Unknown]
	}
	return filepath.Join(baseDir, BundledDir, rel)
}

// ResolvePath picks the encoder binary. An explicitly configured path wins,
// then a bundled binary below baseDir, then ffmpeg on PATH.
func ResolvePath(kind platform.Kind, baseDir, configured string) string {
	if configured != "" {
		return configured
	}
	if baseDir != "" {
		bundled := BundledPath(kind, baseDir)
		if info, err := os.Stat(bundled); err == nil && !info.IsDir() {
			return bundled
		}
	}
	if path, err := exec.LookPath(DefaultBinary); err == nil {
		return path
	}
	return DefaultBinary
}
