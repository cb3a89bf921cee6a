package capture

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

var (
	// ErrUnsafeDeviceReference is returned when a device reference contains
	// characters that would break quoting of the encoder command line.
	ErrUnsafeDeviceReference = errors.New("unsafe device reference")

	// ErrSystemAudioUnsupported marks a requested system-audio capture that
	// was left out of the command.
	ErrSystemAudioUnsupported = errors.New("system audio capture is not supported")
)

// Command is a complete encoder invocation. It is immutable once built.
type Command struct {
	path string
	args []string

	// Skipped lists requested segments that were intentionally left out.
	Skipped []error
}

// NewCommand returns a Command for an encoder path and argument list.
func NewCommand(path string, args ...string) Command {
	return Command{path: path, args: slices.Clone(args)}
}

// Path returns the encoder binary.
func (c Command) Path() string {
	return c.path
}

// Args returns a copy of the arguments, excluding the binary.
func (c Command) Args() []string {
	return slices.Clone(c.args)
}

// Argv returns the binary followed by its arguments.
func (c Command) Argv() []string {
	return append([]string{c.path}, c.args...)
}

// Len returns the number of tokens, including the binary.
func (c Command) Len() int {
	if c.path == "" && len(c.args) == 0 {
		return 0
	}
	return 1 + len(c.args)
}

// String renders the command for logs, quoting tokens that contain spaces
// or shell metacharacters.
func (c Command) String() string {
	parts := make([]string, 0, c.Len())
	for _, tok := range c.Argv() {
		if tok == "" || strings.ContainsAny(tok, " \t;&|<>()[]$*?\"'") {
			tok = strconv.Quote(tok)
		}
		parts = append(parts, tok)
	}
	return strings.Join(parts, " ")
}

// ValidateDeviceReference rejects references containing quotes, backticks or
// control characters.
func ValidateDeviceReference(ref string) error {
	for _, r := range ref {
		switch {
		case r == '"', r == '\'', r == '`':
			return fmt.Errorf("%w: %q contains a quote character", ErrUnsafeDeviceReference, ref)
		case r < 0x20, r == 0x7f:
			return fmt.Errorf("%w: %q contains a control character", ErrUnsafeDeviceReference, ref)
		}
	}
	return nil
}
