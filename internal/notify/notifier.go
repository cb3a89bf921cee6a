package notify

import (
	"context"
	"sync"

	"github.com/oszuidwest/zwfm-capture/internal/config"
	"github.com/oszuidwest/zwfm-capture/internal/session"
	"github.com/oszuidwest/zwfm-capture/internal/util"
)

// Notification event names.
const (
	EventRecordingStarted = "recording_started"
	EventRecordingStopped = "recording_stopped"
	EventRecordingFailed  = "recording_failed"
	EventRecordingSaved   = "recording_saved"
	EventStopSignalFailed = "stop_signal_failed"
)

// EventNotifier turns session events into notifications. Every event goes
// to the event log and the webhook; failures are also emailed. Senders run
// in the background so the controller is never blocked on the network.
type EventNotifier struct {
	cfg *config.Config
	wg  sync.WaitGroup
}

// NewEventNotifier returns an EventNotifier configured with the given config.
func NewEventNotifier(cfg *config.Config) *EventNotifier {
	return &EventNotifier{cfg: cfg}
}

// Observe handles a session lifecycle event. It is meant to be installed as
// (part of) the controller's observer.
func (n *EventNotifier) Observe(e session.Event) {
	p := Payload{
		SessionID: e.Session.ID,
		Path:      e.Session.OutputPath,
		Timestamp: util.RFC3339Now(),
	}
	if e.Err != nil {
		p.Error = e.Err.Error()
	}

	alert := false
	switch e.Type {
	case session.EventStarted:
		p.Event = EventRecordingStarted
	case session.EventStopped:
		p.Event = EventRecordingStopped
		p.Duration = e.Session.Duration().Seconds()
	case session.EventFailed, session.EventStartFailed, session.EventEncoderExited:
		p.Event = EventRecordingFailed
		alert = true
	case session.EventSignalFailed:
		p.Event = EventStopSignalFailed
		alert = true
	default:
		return
	}
	n.dispatch(p, alert)
}

// RecordingSaved reports a recording written to its final location.
func (n *EventNotifier) RecordingSaved(sessionID, path string, duration float64) {
	n.dispatch(Payload{
		Event:     EventRecordingSaved,
		SessionID: sessionID,
		Path:      path,
		Duration:  duration,
		Timestamp: util.RFC3339Now(),
	}, false)
}

// Wait blocks until all pending notifications are delivered or given up.
func (n *EventNotifier) Wait() {
	n.wg.Wait()
}

func (n *EventNotifier) dispatch(p Payload, alert bool) {
	cfg := n.cfg.Snapshot()

	if cfg.HasLogPath() {
		n.send("Event log", func() error {
			return AppendEvent(cfg.LogPath, LogEntry{
				Timestamp:   p.Timestamp,
				Event:       p.Event,
				SessionID:   p.SessionID,
				Path:        p.Path,
				DurationSec: p.Duration,
				Error:       p.Error,
			})
		})
	}
	if cfg.HasWebhook() {
		n.send("Webhook "+p.Event, func() error {
			return NewWebhook(cfg.WebhookURL).Send(context.Background(), p)
		})
	}
	if alert && cfg.HasEmail() {
		emailCfg := EmailConfigFromSnapshot(&cfg)
		n.send("Alert email", func() error { return SendFailureAlert(emailCfg, p) })
	}
}

func (n *EventNotifier) send(notifyType string, fn func() error) {
	n.wg.Go(func() {
		util.LogNotifyResult(fn, notifyType, false)
	})
}

// EmailConfigFromSnapshot builds SMTP settings from a config snapshot.
func EmailConfigFromSnapshot(cfg *config.Snapshot) *EmailConfig {
	return &EmailConfig{
		Host:       cfg.EmailSMTPHost,
		Port:       cfg.EmailSMTPPort,
		FromName:   cfg.EmailFromName,
		Username:   cfg.EmailUsername,
		Password:   cfg.EmailPassword,
		Recipients: cfg.EmailRecipients,
	}
}
