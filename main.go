// Package main implements a screen recorder that captures the screen, an
// optional camera overlay and a microphone by supervising FFmpeg.
//
// Usage:
//
//	zwfm-capture [serve|record|trim|devices|doctor|version] [-config path/to/config.json]
//
// If -config is not specified, config.json in the same directory as the
// binary is used.
package main

import (
	"os"

	"github.com/oszuidwest/zwfm-capture/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
