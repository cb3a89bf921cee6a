package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/oszuidwest/zwfm-capture/internal/util"
)

// Reload re-reads the configuration file. It reports false when the file
// holds exactly what this process last wrote.
func (c *Config) Reload() (bool, error) {
	data, err := os.ReadFile(c.filePath)
	if err != nil {
		return false, util.WrapError("read config", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if bytes.Equal(data, c.written) {
		return false, nil
	}
	if err := c.decodeLocked(data); err != nil {
		return false, err
	}
	c.written = data
	return true, nil
}

// Watch reloads the configuration whenever the file changes on disk and
// calls onChange with the new values. It blocks until ctx is done. The
// directory is watched so editors that replace the file are noticed.
func (c *Config) Watch(ctx context.Context, onChange func(Snapshot)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return util.WrapError("create config watcher", err)
	}
	defer util.SafeClose(watcher, "config watcher")

	if err := watcher.Add(filepath.Dir(c.filePath)); err != nil {
		return util.WrapError("watch config directory", err)
	}
	name := filepath.Clean(c.filePath)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			changed, err := c.Reload()
			if err != nil {
				slog.Warn("failed to reload config", "path", c.filePath, "error", err)
				continue
			}
			if changed {
				slog.Info("config reloaded", "path", c.filePath)
				if onChange != nil {
					onChange(c.Snapshot())
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}
