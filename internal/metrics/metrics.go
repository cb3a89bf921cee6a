// Package metrics exposes recording lifecycle metrics for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oszuidwest/zwfm-capture/internal/session"
)

const namespace = "zwfm_capture"

// Metrics holds the recorder's collectors on their own registry.
type Metrics struct {
	registry *prometheus.Registry

	sessions       *prometheus.CounterVec
	signalFailures prometheus.Counter
	encoderExits   prometheus.Counter
	trims          *prometheus.CounterVec
	saves          *prometheus.CounterVec
	active         prometheus.Gauge
	stopDuration   prometheus.Histogram
}

// New registers all collectors, plus the Go runtime and process collectors,
// on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Recording sessions by outcome.",
		}, []string{"outcome"}),
		signalFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stop_signal_failures_total",
			Help:      "Graceful quit or forced kill requests that reported an error.",
		}),
		encoderExits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encoder_unexpected_exits_total",
			Help:      "Encoder processes that exited while still recording.",
		}),
		trims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trims_total",
			Help:      "Trim requests by result.",
		}, []string{"result"}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saves_total",
			Help:      "Save requests by result.",
		}, []string{"result"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recording_active",
			Help:      "1 while an encoder is recording.",
		}),
		stopDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stop_duration_seconds",
			Help:      "Wall-clock time from stop request to terminal state.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 2.5, 3, 5},
		}),
	}
	m.registry.MustRegister(
		m.sessions, m.signalFailures, m.encoderExits, m.trims, m.saves, m.active, m.stopDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe updates metrics from a session event.
func (m *Metrics) Observe(e session.Event) {
	switch e.Type {
	case session.EventStarted:
		m.sessions.WithLabelValues("started").Inc()
		m.active.Set(1)
	case session.EventStartFailed:
		m.sessions.WithLabelValues("start_failed").Inc()
		m.active.Set(0)
	case session.EventStopped:
		m.sessions.WithLabelValues("stopped").Inc()
		m.active.Set(0)
		m.stopDuration.Observe(e.Elapsed.Seconds())
	case session.EventFailed:
		m.sessions.WithLabelValues("failed").Inc()
		m.active.Set(0)
		m.stopDuration.Observe(e.Elapsed.Seconds())
	case session.EventSignalFailed:
		m.signalFailures.Inc()
	case session.EventEncoderExited:
		m.encoderExits.Inc()
	}
}

// TrimResult values.
const (
	TrimSkipped  = "skipped"
	TrimApplied  = "applied"
	TrimFallback = "fallback"
	TrimError    = "error"
)

// ObserveTrim counts a trim request.
func (m *Metrics) ObserveTrim(result string) {
	m.trims.WithLabelValues(result).Inc()
}

// ObserveSave counts a save request.
func (m *Metrics) ObserveSave(err error) {
	if err != nil {
		m.saves.WithLabelValues("error").Inc()
		return
	}
	m.saves.WithLabelValues("ok").Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
