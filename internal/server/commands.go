package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-capture/internal/capture"
	"github.com/oszuidwest/zwfm-capture/internal/config"
	"github.com/oszuidwest/zwfm-capture/internal/devices"
	"github.com/oszuidwest/zwfm-capture/internal/notify"
	"github.com/oszuidwest/zwfm-capture/internal/session"
	"github.com/oszuidwest/zwfm-capture/internal/storage"
	"github.com/oszuidwest/zwfm-capture/internal/trim"
	"github.com/oszuidwest/zwfm-capture/internal/types"
	"github.com/oszuidwest/zwfm-capture/internal/util"
)

const (
	maxDeviceLength = 256
	maxPathLength   = 4096
	maxURLLength    = 2048
	eventLogLimit   = 100
	maxTrimDuration = 7 * 24 * 60 * 60
)

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Recorder is the part of the recorder driven by commands.
type Recorder interface {
	Start(opts capture.Options) (string, error)
	Stop() session.Session
	SetTrim(w trim.Window, duration time.Duration) error
	Save(ctx context.Context, target string) (storage.SaveResult, error)
	Discard() error
	Devices(ctx context.Context) devices.Devices
	Status() types.RecordingStatus
	PendingStatus() *types.PendingRecording
}

// JSONWriter sends replies to the client.
type JSONWriter interface {
	WriteJSON(v any) error
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg          *config.Config
	rec          Recorder
	testTriggers map[string]func(context.Context) error
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(cfg *config.Config, rec Recorder) *CommandHandler {
	return &CommandHandler{
		cfg:          cfg,
		rec:          rec,
		testTriggers: notificationTests(cfg),
	}
}

func notificationTests(cfg *config.Config) map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"webhook": func(ctx context.Context) error {
			return notify.SendTestWebhook(ctx, cfg.Snapshot().WebhookURL)
		},
		"log": func(context.Context) error {
			return notify.WriteTestLog(cfg.Snapshot().LogPath)
		},
		"email": func(context.Context) error {
			snap := cfg.Snapshot()
			return notify.SendTestEmail(notify.EmailConfigFromSnapshot(&snap))
		},
	}
}

// Handle processes a WebSocket command and replies on out.
func (h *CommandHandler) Handle(ctx context.Context, cmd WSCommand, out JSONWriter, triggerStatusUpdate func()) {
	var (
		data any
		err  error
	)
	switch cmd.Type {
	case "start_recording":
		data, err = h.handleStart(cmd)
	case "stop_recording":
		data, err = h.handleStop()
	case "apply_trim":
		err = h.handleApplyTrim(cmd)
	case "save":
		data, err = h.handleSave(ctx, cmd)
	case "discard":
		err = h.rec.Discard()
	case "update_settings":
		err = h.handleUpdateSettings(cmd)
	case "list_devices":
		data = h.rec.Devices(ctx)
	case "test_webhook", "test_log", "test_email":
		h.handleTest(ctx, out, cmd.Type)
		return
	case "view_event_log":
		h.handleViewEventLog(out)
		return
	default:
		slog.Warn("unknown WebSocket command type", "type", cmd.Type)
		err = fmt.Errorf("unknown command %q", cmd.Type)
	}

	result := types.WSResult{
		Type:    "result",
		Command: cmd.Type,
		ID:      cmd.ID,
		Success: err == nil,
		Data:    data,
	}
	if err != nil {
		slog.Warn("command failed", "command", cmd.Type, "error", err)
		result.Error = err.Error()
	}
	if wsErr := out.WriteJSON(result); wsErr != nil {
		slog.Error("failed to send command response", "command", cmd.Type, "error", wsErr)
	}
	triggerStatusUpdate()
}

// startRequest overrides the configured recording options. Absent fields
// keep the configured value.
type startRequest struct {
	WithCamera      *bool   `json:"with_camera"`
	WithAudio       *bool   `json:"with_audio"`
	WithSystemAudio *bool   `json:"with_system_audio"`
	Camera          *string `json:"camera"`
	Microphone      *string `json:"microphone"`
	Quality         *string `json:"quality"`
	Format          *string `json:"format"`
	CameraPosition  *string `json:"camera_position"`
}

func (req startRequest) apply(opts *capture.Options) error {
	if req.Camera != nil {
		if v := util.ValidateMaxLength("camera", *req.Camera, maxDeviceLength); v != nil {
			return v
		}
		opts.CameraDevice = *req.Camera
	}
	if req.Microphone != nil {
		if v := util.ValidateMaxLength("microphone", *req.Microphone, maxDeviceLength); v != nil {
			return v
		}
		opts.AudioDevice = *req.Microphone
	}
	if req.WithCamera != nil {
		opts.WithCamera = *req.WithCamera
	}
	if req.WithAudio != nil {
		opts.WithAudio = *req.WithAudio
	}
	if req.WithSystemAudio != nil {
		opts.WithSystemAudio = *req.WithSystemAudio
	}
	if req.Quality != nil {
		opts.Quality = capture.ParseQuality(*req.Quality)
	}
	if req.Format != nil {
		opts.Format = capture.ParseFormat(*req.Format)
	}
	if req.CameraPosition != nil {
		opts.CameraPosition = capture.ParseOverlayPosition(*req.CameraPosition)
	}
	return nil
}

func (h *CommandHandler) handleStart(cmd WSCommand) (any, error) {
	var req startRequest
	if len(cmd.Data) > 0 {
		if err := json.Unmarshal(cmd.Data, &req); err != nil {
			return nil, fmt.Errorf("invalid options: %w", err)
		}
	}
	opts := h.cfg.RecordingOptions()
	if err := req.apply(&opts); err != nil {
		return nil, err
	}
	path, err := h.rec.Start(opts)
	if err != nil {
		return nil, err
	}
	return map[string]string{"output_path": path}, nil
}

func (h *CommandHandler) handleStop() (any, error) {
	s := h.rec.Stop()
	if s.Status == session.StatusFailed && s.LastError != "" {
		return h.rec.PendingStatus(), errors.New(s.LastError)
	}
	return h.rec.PendingStatus(), nil
}

func (h *CommandHandler) handleApplyTrim(cmd WSCommand) error {
	var req struct {
		Start    int     `json:"start"`
		End      int     `json:"end"`
		Duration float64 `json:"duration"`
	}
	if err := json.Unmarshal(cmd.Data, &req); err != nil {
		return fmt.Errorf("invalid trim: %w", err)
	}
	if v := util.ValidateRange("start", req.Start, 0, 100); v != nil {
		return v
	}
	if v := util.ValidateRange("end", req.End, 0, 100); v != nil {
		return v
	}
	if v := util.ValidateRangeFloat("duration", req.Duration, 0, maxTrimDuration); v != nil {
		return v
	}
	w := trim.FromPercent(req.Start, req.End)
	return h.rec.SetTrim(w, time.Duration(req.Duration*float64(time.Second)))
}

func (h *CommandHandler) handleSave(ctx context.Context, cmd WSCommand) (any, error) {
	var req struct {
		Path string `json:"path"`
	}
	if len(cmd.Data) > 0 {
		if err := json.Unmarshal(cmd.Data, &req); err != nil {
			return nil, fmt.Errorf("invalid save request: %w", err)
		}
	}
	if v := util.ValidateMaxLength("path", req.Path, maxPathLength); v != nil {
		return nil, v
	}
	res, err := h.rec.Save(ctx, strings.TrimSpace(req.Path))
	if err != nil {
		return nil, err
	}
	return res, nil
}

// settingsUpdate carries the editable configuration. Nil sections are left
// unchanged.
type settingsUpdate struct {
	Settings        *config.Settings      `json:"settings"`
	Devices         *config.DevicesConfig `json:"devices"`
	WebhookURL      *string               `json:"webhook_url"`
	LogPath         *string               `json:"log_path"`
	EmailSMTPHost   *string               `json:"email_smtp_host"`
	EmailSMTPPort   *int                  `json:"email_smtp_port"`
	EmailFromName   *string               `json:"email_from_name"`
	EmailUsername   *string               `json:"email_username"`
	EmailPassword   *string               `json:"email_password"`
	EmailRecipients *string               `json:"email_recipients"`
}

func (u *settingsUpdate) hasEmail() bool {
	return u.EmailSMTPHost != nil || u.EmailSMTPPort != nil ||
		u.EmailFromName != nil || u.EmailUsername != nil ||
		u.EmailPassword != nil || u.EmailRecipients != nil
}

func (h *CommandHandler) handleUpdateSettings(cmd WSCommand) error {
	var u settingsUpdate
	if err := json.Unmarshal(cmd.Data, &u); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	if u.Settings != nil {
		if v := util.ValidateMaxLength("save location", u.Settings.SaveLocation, maxPathLength); v != nil {
			return v
		}
		slog.Info("update_settings: changing recording settings")
		if err := h.cfg.SetSettings(*u.Settings); err != nil {
			return util.WrapError("save settings", err)
		}
	}
	if u.Devices != nil {
		for field, value := range map[string]string{"camera": u.Devices.Camera, "microphone": u.Devices.Microphone} {
			if v := util.ValidateMaxLength(field, value, maxDeviceLength); v != nil {
				return v
			}
			if err := capture.ValidateDeviceReference(value); err != nil {
				return err
			}
		}
		slog.Info("update_settings: changing devices")
		if err := h.cfg.SetDevices(*u.Devices); err != nil {
			return util.WrapError("save devices", err)
		}
	}
	if u.WebhookURL != nil {
		if v := util.ValidateMaxLength("webhook URL", *u.WebhookURL, maxURLLength); v != nil {
			return v
		}
		if err := h.cfg.SetWebhookURL(*u.WebhookURL); err != nil {
			return util.WrapError("save webhook URL", err)
		}
	}
	if u.LogPath != nil {
		if v := util.ValidateMaxLength("log path", *u.LogPath, maxPathLength); v != nil {
			return v
		}
		if err := h.cfg.SetLogPath(*u.LogPath); err != nil {
			return util.WrapError("save log path", err)
		}
	}
	if u.hasEmail() {
		return h.updateEmail(&u)
	}
	return nil
}

func (h *CommandHandler) updateEmail(u *settingsUpdate) error {
	// Get current values for fields not being updated
	snap := h.cfg.Snapshot()
	e := config.EmailConfig{
		Host:       snap.EmailSMTPHost,
		Port:       snap.EmailSMTPPort,
		FromName:   snap.EmailFromName,
		Username:   snap.EmailUsername,
		Password:   snap.EmailPassword,
		Recipients: snap.EmailRecipients,
	}
	if u.EmailSMTPHost != nil {
		e.Host = *u.EmailSMTPHost
	}
	if u.EmailSMTPPort != nil {
		if v := util.ValidatePort("email_smtp_port", *u.EmailSMTPPort); v != nil {
			return v
		}
		e.Port = *u.EmailSMTPPort
	}
	if u.EmailFromName != nil {
		e.FromName = *u.EmailFromName
	}
	if u.EmailUsername != nil {
		e.Username = *u.EmailUsername
	}
	if u.EmailPassword != nil {
		e.Password = *u.EmailPassword
	}
	if u.EmailRecipients != nil {
		e.Recipients = *u.EmailRecipients
	}

	slog.Info("update_settings: updating email configuration")
	if err := h.cfg.SetEmailConfig(e); err != nil {
		return util.WrapError("save email config", err)
	}
	return nil
}

// handleTest executes a notification test and sends the result to the client.
// testCmd should be in format "test_<type>" (e.g., "test_email", "test_webhook").
func (h *CommandHandler) handleTest(ctx context.Context, out JSONWriter, testCmd string) {
	testType := strings.TrimPrefix(testCmd, "test_")
	trigger, ok := h.testTriggers[testType]
	if !ok {
		slog.Warn("unknown test type", "command", testCmd)
		return
	}

	go func() {
		result := types.WSTestResult{
			Type:     "test_result",
			TestType: testType,
			Success:  true,
		}

		if err := trigger(ctx); err != nil {
			slog.Error("test failed", "command", testCmd, "error", err)
			result.Success = false
			result.Error = err.Error()
		} else {
			slog.Info("test succeeded", "command", testCmd)
		}

		if wsErr := out.WriteJSON(result); wsErr != nil {
			slog.Error("failed to send test response", "command", testCmd, "error", wsErr)
		}
	}()
}

// handleViewEventLog returns the most recent event log entries.
func (h *CommandHandler) handleViewEventLog(out JSONWriter) {
	result := types.WSEventLogResult{
		Type:    "event_log_result",
		Success: true,
	}

	logPath := h.cfg.Snapshot().LogPath
	entries, err := notify.ReadLog(logPath, eventLogLimit)
	if err != nil {
		result.Success = false
		result.Error = err.Error()
	} else {
		result.Entries = entries
		result.Path = logPath
	}

	if wsErr := out.WriteJSON(result); wsErr != nil {
		slog.Error("failed to send event log response", "error", wsErr)
	}
}
