package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oszuidwest/zwfm-capture/internal/config"
	"github.com/oszuidwest/zwfm-capture/internal/types"
	"github.com/oszuidwest/zwfm-capture/internal/util"
)

const statusInterval = 3 * time.Second

// Server is an HTTP server that provides the web control surface.
type Server struct {
	config   *config.Config
	recorder Recorder
	sessions *SessionManager
	commands *CommandHandler
	metrics  http.Handler
	version  func() types.VersionInfo
	interval time.Duration
}

// New returns a Server driving rec. metrics may be nil.
func New(cfg *config.Config, rec Recorder, metrics http.Handler, version func() types.VersionInfo) *Server {
	return &Server{
		config:   cfg,
		recorder: rec,
		sessions: NewSessionManager(func() (string, string) {
			return cfg.WebUser(), cfg.WebPassword()
		}),
		commands: NewCommandHandler(cfg, rec),
		metrics:  metrics,
		version:  version,
		interval: statusInterval,
	}
}

// statusMessage is pushed to clients periodically and after each command.
type statusMessage struct {
	Type          string                  `json:"type"`
	Recording     types.RecordingStatus   `json:"recording"`
	Pending       *types.PendingRecording `json:"pending"`
	Settings      config.Settings         `json:"settings"`
	Devices       config.DevicesConfig    `json:"devices"`
	Notifications notificationStatus      `json:"notifications"`
	Version       types.VersionInfo       `json:"version"`
}

// notificationStatus omits secrets.
type notificationStatus struct {
	WebhookURL      string `json:"webhook_url"`
	LogPath         string `json:"log_path"`
	EmailSMTPHost   string `json:"email_smtp_host"`
	EmailSMTPPort   int    `json:"email_smtp_port"`
	EmailFromName   string `json:"email_from_name"`
	EmailUsername   string `json:"email_username"`
	EmailRecipients string `json:"email_recipients"`
}

func (s *Server) status() statusMessage {
	snap := s.config.Snapshot()
	msg := statusMessage{
		Type:      "status",
		Recording: s.recorder.Status(),
		Pending:   s.recorder.PendingStatus(),
		Settings:  snap.Settings,
		Devices:   snap.Devices,
		Notifications: notificationStatus{
			WebhookURL:      snap.WebhookURL,
			LogPath:         snap.LogPath,
			EmailSMTPHost:   snap.EmailSMTPHost,
			EmailSMTPPort:   snap.EmailSMTPPort,
			EmailFromName:   snap.EmailFromName,
			EmailUsername:   snap.EmailUsername,
			EmailRecipients: snap.EmailRecipients,
		},
	}
	if s.version != nil {
		msg.Version = s.version()
	}
	return msg
}

// handleWebSocket streams recorder status to the client and executes its
// commands. The connection lives only as long as the login session that
// opened it.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := Token(r)
	conn, err := UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}
	defer util.SafeCloseFunc(conn, "WebSocket connection")()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	out := &wsWriter{conn: conn}

	// Channel to signal status update needed
	statusUpdate := make(chan struct{}, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			var cmd WSCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			s.commands.Handle(ctx, cmd, out, func() {
				select {
				case statusUpdate <- struct{}{}:
				default:
				}
			})
		}
	}()

	statusTicker := time.NewTicker(s.interval)
	defer statusTicker.Stop()

	sendStatus := func() error {
		return out.WriteJSON(s.status())
	}

	if err := sendStatus(); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-statusUpdate:
			if err := sendStatus(); err != nil {
				return
			}
		case <-statusTicker.C:
			if !s.sessions.Valid(token) {
				slog.Info("closing WebSocket, login session ended", "remote", r.RemoteAddr)
				out.close(websocket.ClosePolicyViolation, "session ended")
				return
			}
			if err := sendStatus(); err != nil {
				return
			}
		}
	}
}

var loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>ZuidWest FM Capture</title></head>
<body>
<form method="post" action="/login">
{{if .Failed}}<p>Invalid username or password.</p>{{end}}
<input type="hidden" name="csrf_token" value="{{.CSRF}}">
<label>Username <input name="username" autocomplete="username"></label>
<label>Password <input name="password" type="password" autocomplete="current-password"></label>
<button type="submit">Log in</button>
</form>
</body>
</html>
`))

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.renderLogin(w, http.StatusOK)
	case http.MethodPost:
		if !s.sessions.ValidateCSRFToken(r.FormValue("csrf_token")) {
			http.Error(w, "invalid or expired form, please reload", http.StatusForbidden)
			return
		}
		if !s.sessions.Login(w, r, r.FormValue("username"), r.FormValue("password")) {
			slog.Warn("failed login attempt", "remote", r.RemoteAddr)
			s.renderLogin(w, http.StatusUnauthorized)
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) renderLogin(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	data := struct {
		CSRF   string
		Failed bool
	}{s.sessions.CreateCSRFToken(), status != http.StatusOK}
	if err := loginPage.Execute(w, data); err != nil {
		slog.Error("failed to render login page", "error", err)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Logout(w, r)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := fmt.Fprintln(w, "ok"); err != nil {
		slog.Debug("failed to write health response", "error", err)
	}
}

// handleStatus returns the status document as JSON for scripted clients.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.status()); err != nil {
		slog.Error("failed to write status", "error", err)
	}
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	auth := s.sessions.RequireAuth

	mux.HandleFunc("/ws", auth(s.handleWebSocket))
	mux.HandleFunc("GET /api/status", auth(s.handleStatus))
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	mux.HandleFunc("GET /{$}", auth(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/status", http.StatusFound)
	}))
	return mux
}

// Start begins listening and serving HTTP requests on the configured port.
// Login sessions are swept until ctx is done. Returns an *http.Server that
// can be used for graceful shutdown.
func (s *Server) Start(ctx context.Context) *http.Server {
	addr := fmt.Sprintf(":%d", s.config.WebPort())
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.sessions.Run(ctx)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
