// Package metrics holds the Prometheus instruments of the recorder.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons used as the reason label.
const (
	ReasonUnavailable = "unavailable"
	ReasonNoTrack     = "no_track"
	ReasonNotReady    = "not_ready"
	ReasonRemap       = "remap"
	ReasonAppend      = "append"
)

// Session results used as the result label.
const (
	ResultCompleted  = "completed"
	ResultFailed     = "failed"
	ResultOpenFailed = "open_failed"
)

// Metrics holds the counters and gauges of recording sessions. A nil
// *Metrics records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	samplesTotal   *prometheus.CounterVec
	droppedTotal   *prometheus.CounterVec
	sessionsTotal  *prometheus.CounterVec
	recording      prometheus.Gauge
	finalizeTiming prometheus.Histogram
}

// New creates and registers the recorder metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	samplesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recorder_samples_appended_total",
		Help: "Total number of samples accepted by the container writer",
	}, []string{"kind"})
	droppedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recorder_samples_dropped_total",
		Help: "Total number of samples rejected by the session",
	}, []string{"kind", "reason"})
	sessionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recorder_sessions_total",
		Help: "Total number of recording sessions by outcome",
	}, []string{"result"})
	recording := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "recorder_recording",
		Help: "1 while a session is writing",
	})
	finalizeTiming := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "recorder_finalize_seconds",
		Help:    "Time spent waiting for the container to finish",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	registry.MustRegister(
		samplesTotal,
		droppedTotal,
		sessionsTotal,
		recording,
		finalizeTiming,
	)

	return &Metrics{
		registry:       registry,
		samplesTotal:   samplesTotal,
		droppedTotal:   droppedTotal,
		sessionsTotal:  sessionsTotal,
		recording:      recording,
		finalizeTiming: finalizeTiming,
	}
}

// IncAppended counts one accepted sample of kind.
func (m *Metrics) IncAppended(kind string) {
	if m == nil {
		return
	}
	m.samplesTotal.WithLabelValues(kind).Inc()
}

// IncDropped counts one rejected sample of kind.
func (m *Metrics) IncDropped(kind, reason string) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues(kind, reason).Inc()
}

// IncSessions counts one finished session.
func (m *Metrics) IncSessions(result string) {
	if m == nil {
		return
	}
	m.sessionsTotal.WithLabelValues(result).Inc()
}

// SetRecording sets the recording gauge.
func (m *Metrics) SetRecording(on bool) {
	if m == nil {
		return
	}
	v := 0.0
	if on {
		v = 1
	}
	m.recording.Set(v)
}

// ObserveFinalize records how long a close waited for the container.
func (m *Metrics) ObserveFinalize(d time.Duration) {
	if m == nil {
		return
	}
	m.finalizeTiming.Observe(d.Seconds())
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
