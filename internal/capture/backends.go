package capture

import "github.com/oszuidwest/zwfm-capture/internal/platform"

// ScreenFrameRate is the capture rate requested from every screen backend.
const ScreenFrameRate = "30"

// Backend holds the input incantations for one platform. A nil Camera or
// Audio means the platform has no backend for that input and the segment is
// left out.
type Backend struct {
	// Screen returns the screen-capture input for the given X11 display.
	// Only the Linux backend uses the display.
	Screen func(display string) []string

	// Camera returns the camera input for a device reference.
	Camera func(device string) []string

	// Audio returns the microphone input for a device reference.
	Audio func(device string) []string
}

// backends maps every platform kind to its capture backend.
var backends = map[platform.Kind]Backend{
	platform.Windows: {
		Screen: gdigrabScreen,
		Camera: func(device string) []string {
			return []string{"-f", "dshow", "-i", "video=" + device}
		},
		Audio: func(device string) []string {
			return []string{"-f", "dshow", "-i", "audio=" + device}
		},
	},
	platform.MacOS: {
		Screen: func(string) []string {
			return []string{"-f", "avfoundation", "-framerate", ScreenFrameRate, "-i", "1:none"}
		},
		Camera: func(device string) []string {
			return []string{"-f", "avfoundation", "-i", device}
		},
		Audio: func(device string) []string {
			return []string{"-f", "avfoundation", "-i", ":" + device}
		},
	},
	platform.Linux: {
		Screen: func(display string) []string {
			if display == "" {
				display = platform.DefaultDisplay
			}
			return []string{"-f", "x11grab", "-framerate", ScreenFrameRate, "-i", display}
		},
		Camera: func(device string) []string {
			return []string{"-f", "v4l2", "-i", device}
		},
		Audio: func(device string) []string {
			return []string{"-f", "pulse", "-i", device}
		},
	},
	// Unknown hosts get the Windows screen grabber as a best effort and no
	// camera or microphone backend.
	platform.Unknown: {
		Screen: gdigrabScreen,
	},
}

func gdigrabScreen(string) []string {
	return []string{"-f", "gdigrab", "-framerate", ScreenFrameRate, "-i", "desktop"}
}

// BackendFor returns the capture backend for kind. Kinds without an entry use
// the Unknown backend.
func BackendFor(kind platform.Kind) Backend {
	if b, ok := backends[kind]; ok {
		return b
	}
	return backends[platform.Unknown]
}

// systemAudioInput returns the system-audio loopback input. No platform has
// one yet.
func systemAudioInput(platform.Kind) ([]string, error) {
	return nil, ErrSystemAudioUnsupported
}
