// Package config provides application configuration management.
package config

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/oszuidwest/zwfm-capture/internal/capture"
	"github.com/oszuidwest/zwfm-capture/internal/util"
)

// Configuration defaults.
const (
	DefaultWebPort          = 8080
	DefaultWebUsername      = "admin"
	DefaultWebPassword      = "capture"
	DefaultGracePeriodMs    = 2000
	DefaultTempRetentionHrs = 24
	DefaultEmailSMTPPort    = 587
	DefaultEmailFromName    = "ZuidWest FM Capture"
	DefaultTempDirName      = "zwfm-capture"

	// FFmpegEnv overrides the configured encoder path.
	FFmpegEnv = "ZWFM_CAPTURE_FFMPEG"
)

// RecorderConfig configures the encoder and temporary artifacts.
type RecorderConfig struct {
	FFmpegPath       string `json:"ffmpeg_path,omitempty" toml:"ffmpeg_path,omitempty"`
	TempDir          string `json:"temp_dir,omitempty" toml:"temp_dir,omitempty"`
	GracePeriodMs    int    `json:"grace_period_ms,omitempty" toml:"grace_period_ms,omitempty"`
	TempRetentionHrs int    `json:"temp_retention_hours,omitempty" toml:"temp_retention_hours,omitempty"`
	MaxRecordingSecs int    `json:"max_recording_seconds,omitempty" toml:"max_recording_seconds,omitempty"`
}

// Settings are the user-facing recording preferences.
type Settings struct {
	Quality        string `json:"quality" toml:"quality"`
	Format         string `json:"format" toml:"format"`
	SaveLocation   string `json:"save_location,omitempty" toml:"save_location,omitempty"`
	CameraPosition string `json:"camera_position" toml:"camera_position"`
	AutoMinimize   bool   `json:"auto_minimize" toml:"auto_minimize"`
	ShowTimer      bool   `json:"show_timer" toml:"show_timer"`
}

// DevicesConfig holds the last selected capture inputs.
type DevicesConfig struct {
	Camera          string `json:"camera,omitempty" toml:"camera,omitempty"`
	Microphone      string `json:"microphone,omitempty" toml:"microphone,omitempty"`
	WithCamera      bool   `json:"with_camera" toml:"with_camera"`
	WithAudio       bool   `json:"with_audio" toml:"with_audio"`
	WithSystemAudio bool   `json:"with_system_audio" toml:"with_system_audio"`
}

// WebConfig contains web server configuration.
type WebConfig struct {
	Port     int    `json:"port" toml:"port"`
	Username string `json:"username" toml:"username"`
	Password string `json:"password" toml:"password"`
}

// EmailConfig contains email notification configuration.
type EmailConfig struct {
	Host       string `json:"host,omitempty" toml:"host,omitempty"`
	Port       int    `json:"port,omitempty" toml:"port,omitempty"`
	FromName   string `json:"from_name,omitempty" toml:"from_name,omitempty"`
	Username   string `json:"username,omitempty" toml:"username,omitempty"`
	Password   string `json:"password,omitempty" toml:"password,omitempty"`
	Recipients string `json:"recipients,omitempty" toml:"recipients,omitempty"`
}

// NotificationsConfig contains all notification configuration.
type NotificationsConfig struct {
	WebhookURL string      `json:"webhook_url,omitempty" toml:"webhook_url,omitempty"`
	LogPath    string      `json:"log_path,omitempty" toml:"log_path,omitempty"`
	Email      EmailConfig `json:"email,omitzero" toml:"email"`
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	Recorder      RecorderConfig      `json:"recorder" toml:"recorder"`
	Settings      Settings            `json:"settings" toml:"settings"`
	Devices       DevicesConfig       `json:"devices" toml:"devices"`
	Web           WebConfig           `json:"web" toml:"web"`
	Notifications NotificationsConfig `json:"notifications,omitzero" toml:"notifications"`

	mu       sync.RWMutex
	filePath string
	// written is the last content this process wrote, so the watcher can
	// skip its own saves.
	written []byte
}

// DefaultSettings mirrors a first run.
func DefaultSettings() Settings {
	return Settings{
		Quality:        capture.DefaultQuality.String(),
		Format:         capture.DefaultFormat.String(),
		CameraPosition: capture.DefaultOverlayPosition.String(),
		AutoMinimize:   true,
		ShowTimer:      true,
	}
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		Recorder: RecorderConfig{
			GracePeriodMs:    DefaultGracePeriodMs,
			TempRetentionHrs: DefaultTempRetentionHrs,
		},
		Settings: DefaultSettings(),
		Devices: DevicesConfig{
			WithAudio: true,
		},
		Web: WebConfig{
			Port:     DefaultWebPort,
			Username: DefaultWebUsername,
			Password: DefaultWebPassword,
		},
		filePath: filePath,
	}
}

// Path returns the configuration file path.
func (c *Config) Path() string {
	return c.filePath
}

func (c *Config) isTOML() bool {
	return strings.EqualFold(filepath.Ext(c.filePath), ".toml")
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	return c.decodeLocked(data)
}

// decodeLocked parses data over the current values. Caller must hold c.mu.
func (c *Config) decodeLocked(data []byte) error {
	if c.isTOML() {
		if _, err := toml.Decode(string(data), c); err != nil {
			return util.WrapError("parse config", err)
		}
	} else if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}
	c.applyDefaults()
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	if c.Web.Port == 0 {
		c.Web.Port = DefaultWebPort
	}
	if c.Web.Username == "" {
		c.Web.Username = DefaultWebUsername
	}
	if c.Web.Password == "" {
		c.Web.Password = DefaultWebPassword
	}
	defaults := DefaultSettings()
	c.Settings.Quality = cmp.Or(c.Settings.Quality, defaults.Quality)
	c.Settings.Format = cmp.Or(c.Settings.Format, defaults.Format)
	c.Settings.CameraPosition = cmp.Or(c.Settings.CameraPosition, defaults.CameraPosition)
}

// Save writes the configuration to file.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	var (
		data []byte
		err  error
	)
	if c.isTOML() {
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(c)
		data = buf.Bytes()
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}
	c.written = data

	return nil
}

// FFmpegPath returns the configured encoder binary, honouring FFmpegEnv.
func (c *Config) FFmpegPath() string {
	if p := os.Getenv(FFmpegEnv); p != "" {
		return p
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Recorder.FFmpegPath
}

// TempDir returns the directory recordings are written to while in progress.
func (c *Config) TempDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Recorder.TempDir != "" {
		return c.Recorder.TempDir
	}
	return filepath.Join(os.TempDir(), DefaultTempDirName)
}

// GracePeriod returns how long a stop waits before killing the encoder.
func (c *Config) GracePeriod() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(cmp.Or(c.Recorder.GracePeriodMs, DefaultGracePeriodMs)) * time.Millisecond
}

// TempRetention returns the minimum age of swept temporary recordings.
func (c *Config) TempRetention() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(cmp.Or(c.Recorder.TempRetentionHrs, DefaultTempRetentionHrs)) * time.Hour
}

// MaxRecording returns the automatic stop limit, or zero for none.
func (c *Config) MaxRecording() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Recorder.MaxRecordingSecs) * time.Second
}

// CurrentSettings returns a copy of the recording preferences.
func (c *Config) CurrentSettings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Settings
}

// SetSettings replaces the recording preferences and saves the configuration.
// Unknown values are normalised to their defaults.
func (c *Config) SetSettings(s Settings) error {
	s.Quality = capture.ParseQuality(s.Quality).String()
	s.Format = capture.ParseFormat(s.Format).String()
	s.CameraPosition = capture.ParseOverlayPosition(s.CameraPosition).String()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.Settings = s
	return c.saveLocked()
}

// CurrentDevices returns a copy of the device selection.
func (c *Config) CurrentDevices() DevicesConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Devices
}

// SetDevices updates the device selection and saves the configuration.
func (c *Config) SetDevices(d DevicesConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Devices = d
	return c.saveLocked()
}

// RecordingOptions derives capture options from the stored settings and
// device selection.
func (c *Config) RecordingOptions() capture.Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return capture.Options{
		WithCamera:      c.Devices.WithCamera,
		WithAudio:       c.Devices.WithAudio,
		WithSystemAudio: c.Devices.WithSystemAudio,
		CameraDevice:    c.Devices.Camera,
		AudioDevice:     c.Devices.Microphone,
		Quality:         capture.ParseQuality(c.Settings.Quality),
		Format:          capture.ParseFormat(c.Settings.Format),
		CameraPosition:  capture.ParseOverlayPosition(c.Settings.CameraPosition),
	}
}

// WebPort returns the web server port.
func (c *Config) WebPort() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Web.Port
}

// WebUser returns the web authentication username.
func (c *Config) WebUser() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Web.Username
}

// WebPassword returns the web authentication password.
func (c *Config) WebPassword() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Web.Password
}

// SetWebhookURL updates the webhook URL and saves the configuration.
func (c *Config) SetWebhookURL(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.WebhookURL = url
	return c.saveLocked()
}

// SetLogPath updates the log file path and saves the configuration.
func (c *Config) SetLogPath(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.LogPath = path
	return c.saveLocked()
}

// SetEmailConfig updates all email configuration fields and saves.
func (c *Config) SetEmailConfig(e EmailConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Email = e
	return c.saveLocked()
}

// Snapshot contains a point-in-time copy of all configuration values.
// Use this instead of multiple individual getters to reduce mutex contention.
type Snapshot struct {
	// Recorder
	FFmpegPath    string
	TempDir       string
	GracePeriod   time.Duration
	TempRetention time.Duration
	MaxRecording  time.Duration

	Settings Settings
	Devices  DevicesConfig

	// Web
	WebPort     int
	WebUser     string
	WebPassword string

	// Notifications
	WebhookURL string
	LogPath    string

	// Email
	EmailSMTPHost   string
	EmailSMTPPort   int
	EmailFromName   string
	EmailUsername   string
	EmailPassword   string
	EmailRecipients string
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	ffmpegPath := c.FFmpegPath()
	tempDir := c.TempDir()

	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		FFmpegPath:    ffmpegPath,
		TempDir:       tempDir,
		GracePeriod:   time.Duration(cmp.Or(c.Recorder.GracePeriodMs, DefaultGracePeriodMs)) * time.Millisecond,
		TempRetention: time.Duration(cmp.Or(c.Recorder.TempRetentionHrs, DefaultTempRetentionHrs)) * time.Hour,
		MaxRecording:  time.Duration(c.Recorder.MaxRecordingSecs) * time.Second,

		Settings: c.Settings,
		Devices:  c.Devices,

		WebPort:     c.Web.Port,
		WebUser:     c.Web.Username,
		WebPassword: c.Web.Password,

		WebhookURL: c.Notifications.WebhookURL,
		LogPath:    c.Notifications.LogPath,

		// Email (with defaults)
		EmailSMTPHost:   c.Notifications.Email.Host,
		EmailSMTPPort:   cmp.Or(c.Notifications.Email.Port, DefaultEmailSMTPPort),
		EmailFromName:   cmp.Or(c.Notifications.Email.FromName, DefaultEmailFromName),
		EmailUsername:   c.Notifications.Email.Username,
		EmailPassword:   c.Notifications.Email.Password,
		EmailRecipients: c.Notifications.Email.Recipients,
	}
}

// HasWebhook returns true if a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasEmail returns true if email notifications are configured.
func (s *Snapshot) HasEmail() bool {
	return s.EmailSMTPHost != "" && s.EmailRecipients != ""
}

// HasLogPath returns true if a log path is configured.
func (s *Snapshot) HasLogPath() bool {
	return s.LogPath != ""
}
