package storage

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultCleanupInterval is how often stale temporary recordings are swept.
const DefaultCleanupInterval = 1 * time.Hour

// Cleaner removes temporary recording files from a directory.
type Cleaner struct {
	Dir    string
	Prefix string
	// Retention is the minimum age before a file is swept periodically.
	Retention time.Duration
	Interval  time.Duration
	// Keep reports files that must survive, such as the artifact of the
	// recording in progress.
	Keep func(path string) bool

	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// Start begins periodic sweeping.
func (c *Cleaner) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stopChan = make(chan struct{})
	c.mu.Unlock()

	interval := c.Interval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}

	c.wg.Add(1)
	go c.run(interval)

	slog.Info("temp cleanup started", "dir", c.Dir, "interval", interval, "retention", c.Retention)
}

// Stop stops periodic sweeping.
func (c *Cleaner) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopChan)
	c.mu.Unlock()

	c.wg.Wait()
	slog.Info("temp cleanup stopped", "dir", c.Dir)
}

func (c *Cleaner) run(interval time.Duration) {
	defer c.wg.Done()

	c.Sweep(time.Now().Add(-c.Retention))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.Sweep(time.Now().Add(-c.Retention))
		}
	}
}

// RemoveAll deletes every temporary recording regardless of age.
func (c *Cleaner) RemoveAll() int {
	return c.Sweep(time.Time{})
}

// Sweep deletes temporary recordings last modified before cutoff. A zero
// cutoff deletes all of them. It returns the number of files removed.
func (c *Cleaner) Sweep(cutoff time.Time) int {
	if c.Dir == "" {
		return 0
	}
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("failed to read temp directory", "dir", c.Dir, "error", err)
		}
		return 0
	}

	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), c.Prefix) {
			continue
		}
		path := filepath.Join(c.Dir, entry.Name())
		if c.Keep != nil && c.Keep(path) {
			continue
		}
		if !cutoff.IsZero() {
			info, err := entry.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
		}
		if err := os.Remove(path); err != nil {
			slog.Error("failed to remove temp recording", "path", path, "error", err)
			continue
		}
		deleted++
		slog.Debug("removed temp recording", "path", path)
	}

	if deleted > 0 {
		slog.Info("temp cleanup completed", "dir", c.Dir, "deleted_files", deleted)
	}
	return deleted
}
