package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oszuidwest/zwfm-capture/internal/capture"
	"github.com/oszuidwest/zwfm-capture/internal/config"
	"github.com/oszuidwest/zwfm-capture/internal/devices"
	"github.com/oszuidwest/zwfm-capture/internal/session"
	"github.com/oszuidwest/zwfm-capture/internal/storage"
	"github.com/oszuidwest/zwfm-capture/internal/trim"
	"github.com/oszuidwest/zwfm-capture/internal/types"
)

type fakeRecorder struct {
	mu       sync.Mutex
	started  []capture.Options
	window   trim.Window
	duration time.Duration
	saveTo   string
	startErr error
}

func (f *fakeRecorder) Start(opts capture.Options) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = append(f.started, opts)
	return "/tmp/recording_1.mp4", nil
}

func (f *fakeRecorder) Stop() session.Session {
	return session.Session{Status: session.StatusStopped}
}

func (f *fakeRecorder) SetTrim(w trim.Window, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.window, f.duration = w, d
	return nil
}

func (f *fakeRecorder) Save(_ context.Context, target string) (storage.SaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveTo = target
	return storage.SaveResult{Path: target}, nil
}

func (f *fakeRecorder) Discard() error { return nil }

func (f *fakeRecorder) Devices(context.Context) devices.Devices {
	return devices.Devices{Cameras: []devices.Device{{ID: "/dev/video0", Name: "/dev/video0"}}}
}

func (f *fakeRecorder) Status() types.RecordingStatus {
	return types.RecordingStatus{State: "idle", Platform: "linux"}
}

func (f *fakeRecorder) PendingStatus() *types.PendingRecording { return nil }

type captureWriter struct {
	mu   sync.Mutex
	msgs []any
}

func (w *captureWriter) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, v)
	return nil
}

func (w *captureWriter) last(t *testing.T) types.WSResult {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.msgs) == 0 {
		t.Fatal("no reply written")
	}
	res, ok := w.msgs[len(w.msgs)-1].(types.WSResult)
	if !ok {
		t.Fatalf("reply is %T, want types.WSResult", w.msgs[len(w.msgs)-1])
	}
	return res
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	cfg.Devices.Microphone = "default"
	return cfg
}

func handle(t *testing.T, h *CommandHandler, typ, data string) types.WSResult {
	t.Helper()
	out := &captureWriter{}
	triggered := false
	h.Handle(context.Background(), WSCommand{Type: typ, ID: "1", Data: json.RawMessage(data)}, out, func() { triggered = true })
	if !triggered {
		t.Errorf("%s did not trigger a status update", typ)
	}
	return out.last(t)
}

func TestStartRecordingOverridesConfiguredOptions(t *testing.T) {
	rec := &fakeRecorder{}
	h := NewCommandHandler(newTestConfig(t), rec)

	res := handle(t, h, "start_recording", `{"with_camera":true,"camera":"/dev/video2","quality":"high","format":"webm"}`)
	if !res.Success || res.Command != "start_recording" || res.ID != "1" {
		t.Fatalf("result = %+v", res)
	}
	got := rec.started[0]
	if !got.WithCamera || got.CameraDevice != "/dev/video2" || got.Quality != capture.QualityHigh || got.Format != capture.FormatWebM {
		t.Errorf("options = %+v", got)
	}
	if got.AudioDevice != "default" || !got.WithAudio {
		t.Errorf("configured microphone lost: %+v", got)
	}
}

func TestStartRecordingReportsErrors(t *testing.T) {
	rec := &fakeRecorder{startErr: session.ErrSessionBusy}
	h := NewCommandHandler(newTestConfig(t), rec)

	if res := handle(t, h, "start_recording", ``); res.Success || res.Error == "" {
		t.Errorf("result = %+v", res)
	}
	long := strings.Repeat("x", maxDeviceLength+1)
	rec.startErr = nil
	if res := handle(t, h, "start_recording", `{"camera":"`+long+`"}`); res.Success {
		t.Error("oversized device reference accepted")
	}
}

func TestApplyTrim(t *testing.T) {
	tests := []struct {
		name string
		data string
		ok   bool
		want trim.Window
	}{
		{"valid", `{"start":25,"end":75,"duration":100}`, true, trim.Window{Start: 0.25, End: 0.75}},
		{"crossed handles", `{"start":80,"end":20}`, true, trim.Window{Start: 0.19, End: 0.2}},
		{"out of range", `{"start":-5,"end":50}`, false, trim.Window{}},
		{"negative duration", `{"start":0,"end":50,"duration":-1}`, false, trim.Window{}},
		{"bad json", `{`, false, trim.Window{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecorder{}
			h := NewCommandHandler(newTestConfig(t), rec)
			res := handle(t, h, "apply_trim", tt.data)
			if res.Success != tt.ok {
				t.Fatalf("success = %v, want %v (%s)", res.Success, tt.ok, res.Error)
			}
			if tt.ok && rec.window != tt.want {
				t.Errorf("window = %+v, want %+v", rec.window, tt.want)
			}
		})
	}
}

func TestSaveUsesRequestedPath(t *testing.T) {
	rec := &fakeRecorder{}
	h := NewCommandHandler(newTestConfig(t), rec)

	res := handle(t, h, "save", `{"path":" /videos/out.mp4 "}`)
	if !res.Success || rec.saveTo != "/videos/out.mp4" {
		t.Errorf("result = %+v, saved to %q", res, rec.saveTo)
	}
	if res := handle(t, h, "save", ``); !res.Success || rec.saveTo != "" {
		t.Errorf("default save = %+v, %q", res, rec.saveTo)
	}
}

func TestUpdateSettings(t *testing.T) {
	cfg := newTestConfig(t)
	h := NewCommandHandler(cfg, &fakeRecorder{})

	res := handle(t, h, "update_settings", `{
		"settings": {"quality":"cinematic","format":"mkv","camera_position":"top-left"},
		"webhook_url": "https://example.com/hook",
		"email_smtp_host": "smtp.example.com"
	}`)
	if !res.Success {
		t.Fatalf("update_settings failed: %s", res.Error)
	}
	snap := cfg.Snapshot()
	if snap.Settings.Quality != capture.DefaultQuality.String() || snap.Settings.Format != "mkv" {
		t.Errorf("settings = %+v", snap.Settings)
	}
	if snap.WebhookURL != "https://example.com/hook" || snap.EmailSMTPHost != "smtp.example.com" {
		t.Errorf("notifications not saved: %+v", snap)
	}
	if snap.EmailSMTPPort != config.DefaultEmailSMTPPort {
		t.Errorf("email port = %d, want default kept", snap.EmailSMTPPort)
	}

	for _, data := range []string{
		`{"email_smtp_port": 70000}`,
		`{"devices": {"camera": "cam\"; rm -rf /"}}`,
	} {
		if res := handle(t, h, "update_settings", data); res.Success {
			t.Errorf("update_settings(%s) accepted", data)
		}
	}
}

func TestListDevicesAndUnknownCommand(t *testing.T) {
	h := NewCommandHandler(newTestConfig(t), &fakeRecorder{})

	res := handle(t, h, "list_devices", ``)
	if d, ok := res.Data.(devices.Devices); !ok || len(d.Cameras) != 1 {
		t.Errorf("list_devices data = %#v", res.Data)
	}
	if res := handle(t, h, "reboot", ``); res.Success {
		t.Error("unknown command reported success")
	}
}

func TestViewEventLogWithoutPath(t *testing.T) {
	h := NewCommandHandler(newTestConfig(t), &fakeRecorder{})
	out := &captureWriter{}
	h.Handle(context.Background(), WSCommand{Type: "view_event_log"}, out, func() {})

	res, ok := out.msgs[0].(types.WSEventLogResult)
	if !ok || res.Success || res.Error == "" {
		t.Errorf("result = %#v", out.msgs[0])
	}
}

func TestAllowedOrigin(t *testing.T) {
	tests := []struct {
		origin, host string
		want         bool
	}{
		{"http://capture.local:8080", "capture.local:8080", true},
		{"http://localhost:3000", "capture.local:8080", true},
		{"http://192.168.1.20", "capture.local:8080", true},
		{"http://10.0.0.5:8080", "capture.local:8080", true},
		{"https://evil.example", "capture.local:8080", false},
		{"http://10.evil.example", "capture.local:8080", false},
		{"not a url", "capture.local:8080", false},
	}
	for _, tt := range tests {
		if got := allowedOrigin(tt.origin, tt.host); got != tt.want {
			t.Errorf("allowedOrigin(%q, %q) = %v, want %v", tt.origin, tt.host, got, tt.want)
		}
	}
}

var csrfPattern = regexp.MustCompile(`name="csrf_token" value="([0-9a-f]+)"`)

func login(t *testing.T, client *http.Client, base, password string) *http.Response {
	t.Helper()
	resp, err := client.Get(base + "/login")
	if err != nil {
		t.Fatal(err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	m := csrfPattern.FindSubmatch(body)
	if m == nil {
		t.Fatalf("no csrf token in login page:\n%s", body)
	}

	resp, err = client.PostForm(base+"/login", url.Values{
		"csrf_token": {string(m[1])},
		"username":   {config.DefaultWebUsername},
		"password":   {password},
	})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	return resp
}

func newTestServer(t *testing.T) (*httptest.Server, *http.Client) {
	t.Helper()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})
	s := New(newTestConfig(t), &fakeRecorder{}, metrics, func() types.VersionInfo {
		return types.VersionInfo{Current: "1.0.0"}
	})
	s.interval = 50 * time.Millisecond
	ts := httptest.NewServer(s.SetupRoutes())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	client := ts.Client()
	client.Jar = jar
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return ts, client
}

func TestPublicRoutes(t *testing.T) {
	ts, client := newTestServer(t)

	for path, want := range map[string]int{
		"/healthz":    http.StatusOK,
		"/metrics":    http.StatusOK,
		"/api/status": http.StatusFound,
		"/ws":         http.StatusFound,
	} {
		resp, err := client.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("GET %s = %d, want %d", path, resp.StatusCode, want)
		}
	}
}

func TestLoginFlow(t *testing.T) {
	ts, client := newTestServer(t)

	if resp := login(t, client, ts.URL, "wrong"); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad password status = %d", resp.StatusCode)
	}
	if resp := login(t, client, ts.URL, config.DefaultWebPassword); resp.StatusCode != http.StatusFound {
		t.Fatalf("login status = %d", resp.StatusCode)
	}

	resp, err := client.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status after login = %d", resp.StatusCode)
	}
	var msg statusMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Recording.State != "idle" || msg.Version.Current != "1.0.0" {
		t.Errorf("status = %+v", msg)
	}

	resp, err = client.Get(ts.URL + "/logout")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	resp, err = client.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("status after logout = %d, want redirect", resp.StatusCode)
	}
}

func TestLoginRejectsMissingCSRF(t *testing.T) {
	ts, client := newTestServer(t)
	resp, err := client.PostForm(ts.URL+"/login", url.Values{
		"username": {config.DefaultWebUsername},
		"password": {config.DefaultWebPassword},
	})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestWebSocketSession(t *testing.T) {
	ts, client := newTestServer(t)
	login(t, client, ts.URL, config.DefaultWebPassword)
	conn := dialWebSocket(t, ts, client)

	var first map[string]any
	if err := conn.ReadJSON(&first); err != nil || first["type"] != "status" {
		t.Fatalf("first message = %v, %v", first, err)
	}

	if err := conn.WriteJSON(WSCommand{Type: "start_recording", ID: "abc"}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		var msg types.WSResult
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatal(err)
		}
		if msg.Type == "result" {
			if !msg.Success || msg.ID != "abc" {
				t.Errorf("result = %+v", msg)
			}
			return
		}
	}
	t.Fatal("no command result received")
}

func dialWebSocket(t *testing.T, ts *httptest.Server, client *http.Client) *websocket.Conn {
	t.Helper()
	u, _ := url.Parse(ts.URL)
	header := http.Header{}
	for _, c := range client.Jar.Cookies(u) {
		header.Add("Cookie", c.String())
	}
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestLogoutClosesWebSocket(t *testing.T) {
	ts, client := newTestServer(t)
	login(t, client, ts.URL, config.DefaultWebPassword)
	conn := dialWebSocket(t, ts, client)

	resp, err := client.Get(ts.URL + "/logout")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg map[string]any
		err := conn.ReadJSON(&msg)
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		if !errors.As(err, &ce) || ce.Code != websocket.ClosePolicyViolation {
			t.Fatalf("read error = %v, want policy violation close", err)
		}
		return
	}
}
