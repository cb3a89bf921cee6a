// Package platform identifies the host operating system family.
package platform

import (
	"os"
	"runtime"
	"sync"
)

// Kind is the operating system family the recorder runs on.
type Kind int

const (
	// Unknown is used when the host could not be identified.
	Unknown Kind = iota
	// Windows hosts capture through gdigrab and DirectShow.
	Windows
	// MacOS hosts capture through AVFoundation.
	MacOS
	// Linux hosts capture through x11grab, V4L2 and PulseAudio.
	Linux
)

// DefaultDisplay is the X11 display captured when $DISPLAY is unset.
const DefaultDisplay = ":0.0"

func (k Kind) String() string {
	switch k {
	case Windows:
		return "windows"
	case MacOS:
		return "macos"
	case Linux:
		return "linux"
	default:
		return "unknown"
	}
}

var (
	resolveOnce sync.Once
	resolved    Kind
)

// Resolve returns the host platform. The result is computed once per process
// and never changes afterwards.
func Resolve() Kind {
	resolveOnce.Do(func() {
		resolved = FromGOOS(runtime.GOOS)
	})
	return resolved
}

// FromGOOS maps a GOOS value to a Kind. Unrecognised values map to Unknown.
func FromGOOS(goos string) Kind {
	switch goos {
	case "windows":
		return Windows
	case "darwin":
		return MacOS
	case "linux":
		return Linux
	default:
		return Unknown
	}
}

// Display returns the X11 display to capture.
func Display() string {
	if d := os.Getenv("DISPLAY"); d != "" {
		return d
	}
	return DefaultDisplay
}
