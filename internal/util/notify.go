package util

import "log/slog"

// LogNotifyResult runs a notification sender and logs its outcome.
// Errors are logged here, so nothing is returned.
func LogNotifyResult(fn func() error, notifyType string, logSuccess bool) {
	if err := fn(); err != nil {
		slog.Error("notification failed", "type", notifyType, "error", err)
		return
	}
	if logSuccess {
		slog.Info("notification sent", "type", notifyType)
	}
}
