package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-capture/internal/util"
)

// Webhook delivery defaults.
const (
	DefaultWebhookAttempts = 3
	DefaultWebhookTimeout  = 10 * time.Second
	webhookInitialBackoff  = 500 * time.Millisecond
	webhookMaxBackoff      = 5 * time.Second
)

// Payload is the JSON body posted to the webhook.
type Payload struct {
	Event     string  `json:"event"`
	SessionID string  `json:"session_id,omitempty"`
	Path      string  `json:"path,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	Error     string  `json:"error,omitempty"`
	Message   string  `json:"message,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// Webhook posts event payloads, retrying transient failures. InitialDelay
// and MaxDelay bound the exponential backoff between attempts.
type Webhook struct {
	URL          string
	Client       *http.Client
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// NewWebhook returns a webhook sender with default retry settings.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		URL:          url,
		Client:       &http.Client{Timeout: DefaultWebhookTimeout},
		Attempts:     DefaultWebhookAttempts,
		InitialDelay: webhookInitialBackoff,
		MaxDelay:     webhookMaxBackoff,
	}
}

// Send posts p. Server errors and transport failures are retried with
// exponential backoff; a 4xx response fails immediately.
func (w *Webhook) Send(ctx context.Context, p Payload) error {
	if !util.IsConfigured(w.URL) {
		return nil // Silently skip if not configured
	}
	if p.Timestamp == "" {
		p.Timestamp = util.RFC3339Now()
	}

	jsonData, err := json.Marshal(p)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	attempts := max(w.Attempts, 1)
	backoff := util.NewBackoff(w.InitialDelay, w.MaxDelay)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		retry, err := w.post(ctx, jsonData)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt == attempts {
			break
		}

		delay := backoff.Next()
		slog.Warn("webhook failed, retrying", "event", p.Event, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

func (w *Webhook) post(ctx context.Context, body []byte) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return false, util.WrapError("create webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return ctx.Err() == nil, util.WrapError("send webhook request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "webhook response body")()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
			fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return false, nil
}

// SendTestWebhook sends a test POST request to verify webhook configuration.
func SendTestWebhook(ctx context.Context, webhookURL string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	return NewWebhook(webhookURL).Send(ctx, Payload{
		Event:   "test",
		Message: "This is a test notification from ZuidWest FM Capture",
	})
}
