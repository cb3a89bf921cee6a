// Package types provides shared type definitions used by the web interface.
package types

// VersionInfo describes the running build and the latest published release.
type VersionInfo struct {
	Current     string `json:"current"`
	Latest      string `json:"latest,omitzero"`
	UpdateAvail bool   `json:"update_available"`
	Commit      string `json:"commit,omitzero"`
	BuildTime   string `json:"build_time,omitzero"`
}

// RecordingStatus is the live view of the recorder pushed to clients.
type RecordingStatus struct {
	SessionID  string `json:"session_id,omitzero"`
	State      string `json:"state"`
	OutputPath string `json:"output_path,omitzero"`
	Elapsed    string `json:"elapsed,omitzero"`
	LastError  string `json:"last_error,omitzero"`
	Platform   string `json:"platform"`
}

// PendingRecording is a stopped recording waiting to be saved or discarded.
type PendingRecording struct {
	SessionID string  `json:"session_id"`
	Path      string  `json:"path"`
	Duration  float64 `json:"duration"`
	TrimStart float64 `json:"trim_start"`
	TrimEnd   float64 `json:"trim_end"`
}

// WSResult is the generic reply to a WebSocket command.
type WSResult struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	ID      string `json:"id,omitzero"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitzero"`
	Data    any    `json:"data,omitzero"`
}

// WSTestResult reports the outcome of a notification test.
type WSTestResult struct {
	Type     string `json:"type"`
	TestType string `json:"test_type"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitzero"`
}

// WSEventLogResult carries the tail of the event log.
type WSEventLogResult struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitzero"`
	Path    string `json:"path,omitzero"`
	Entries any    `json:"entries,omitzero"`
}
