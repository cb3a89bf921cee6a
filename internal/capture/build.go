package capture

import "github.com/oszuidwest/zwfm-capture/internal/platform"

// Preamble is emitted before the first input.
var Preamble = []string{"-hide_banner", "-loglevel", "warning"}

// Build assembles the capture command for opts on the given platform.
//
// Segments are emitted in a fixed order because the encoder numbers inputs
// positionally: screen, camera, microphone, overlay filter, encoding, output.
// The overlay filter refers to input 1 and is only emitted when the camera
// input was actually added.
//
// Build fails only when a device reference that would be embedded is unsafe.
func Build(opts Options, kind platform.Kind, encoderPath string) (Command, error) {
	backend := BackendFor(kind)

	var (
		cameraArgs []string
		audioArgs  []string
		skipped    []error
	)

	if opts.HasCamera() && backend.Camera != nil {
		if err := ValidateDeviceReference(opts.CameraDevice); err != nil {
			return Command{}, err
		}
		cameraArgs = backend.Camera(opts.CameraDevice)
	}

	if opts.HasAudio() && backend.Audio != nil {
		if err := ValidateDeviceReference(opts.AudioDevice); err != nil {
			return Command{}, err
		}
		audioArgs = backend.Audio(opts.AudioDevice)
	}

	if opts.WithSystemAudio {
		if _, err := systemAudioInput(kind); err != nil {
			skipped = append(skipped, err)
		}
	}

	args := make([]string, 0, 48)
	args = append(args, Preamble...)
	args = append(args, backend.Screen(opts.Display)...)
	args = append(args, cameraArgs...)
	args = append(args, audioArgs...)
	if cameraArgs != nil {
		args = append(args, "-filter_complex", OverlayFilter(opts.CameraPosition))
	}
	args = append(args, EncodeArgs(opts.Quality, opts.Format)...)
	args = append(args, "-y", opts.OutputPath)

	cmd := NewCommand(encoderPath, args...)
	cmd.Skipped = skipped
	return cmd, nil
}
