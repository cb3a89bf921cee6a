package notify

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/oszuidwest/zwfm-capture/internal/util"
)

// LogEntry is one line in the JSON-lines event log.
type LogEntry struct {
	Timestamp   string  `json:"timestamp"`
	Event       string  `json:"event"`
	SessionID   string  `json:"session_id,omitempty"`
	Path        string  `json:"path,omitempty"`
	DurationSec float64 `json:"duration_sec,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// AppendEvent records an event in the log file.
func AppendEvent(logPath string, entry LogEntry) error {
	if entry.Timestamp == "" {
		entry.Timestamp = util.RFC3339Now()
	}
	return appendLogEntry(logPath, entry)
}

// WriteTestLog writes a test entry to verify log file configuration.
func WriteTestLog(logPath string) error {
	if logPath == "" {
		return fmt.Errorf("log file path not configured")
	}

	return appendLogEntry(logPath, LogEntry{
		Timestamp: util.RFC3339Now(),
		Event:     "test",
	})
}

// ReadLog returns up to limit most recent entries, newest first. Lines that
// do not parse are skipped.
func ReadLog(logPath string, limit int) ([]LogEntry, error) {
	if logPath == "" {
		return nil, fmt.Errorf("log file path not configured")
	}
	f, err := os.Open(logPath)
	if os.IsNotExist(err) {
		return []LogEntry{}, nil
	}
	if err != nil {
		return nil, util.WrapError("open log file", err)
	}
	defer util.SafeCloseFunc(f, "log file")()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, util.WrapError("read log file", err)
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]LogEntry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out, nil
}

// appendLogEntry appends a JSON log entry to the file.
func appendLogEntry(logPath string, entry LogEntry) error {
	if !util.IsConfigured(logPath) {
		return nil
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return util.WrapError("marshal log entry", err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return util.WrapError("open log file", err)
	}
	defer util.SafeCloseFunc(f, "log file")()

	if _, err := f.Write(append(jsonData, '\n')); err != nil {
		return util.WrapError("write log entry", err)
	}

	return nil
}
