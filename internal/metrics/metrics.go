// Package metrics exposes proxy counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eviproxy/internal/domain"
)

// Metrics holds all Prometheus metrics for the proxy.
type Metrics struct {
	registry *prometheus.Registry

	EventsTotal     *prometheus.CounterVec
	EffectsTotal    *prometheus.CounterVec
	ModeActive      *prometheus.GaugeVec
	ClientAttached  prometheus.Gauge
	FramesTotal     *prometheus.CounterVec
	RecordingsTotal *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
}

// New creates a Metrics instance with its own registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "evi_proxy"
	}

	registry := prometheus.NewRegistry()

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events taken from the multiplexer",
		},
		[]string{"source", "type"},
	)

	effectsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "effects_total",
			Help:      "Effects executed by the interpreter",
		},
		[]string{"type"},
	)

	modeActive := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mode_active",
			Help:      "1 for the current proxy mode, 0 otherwise",
		},
		[]string{"mode"},
	)

	clientAttached := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "downstream_client_attached",
			Help:      "Whether a downstream client is connected",
		},
	)

	framesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames relayed between client and upstream",
		},
		[]string{"direction"},
	)

	recordingsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_total",
			Help:      "Recording file operations",
		},
		[]string{"op", "status"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors surfaced to the operator",
		},
		[]string{"kind"},
	)

	registry.MustRegister(
		eventsTotal,
		effectsTotal,
		modeActive,
		clientAttached,
		framesTotal,
		recordingsTotal,
		errorsTotal,
	)

	m := &Metrics{
		registry:        registry,
		EventsTotal:     eventsTotal,
		EffectsTotal:    effectsTotal,
		ModeActive:      modeActive,
		ClientAttached:  clientAttached,
		FramesTotal:     framesTotal,
		RecordingsTotal: recordingsTotal,
		ErrorsTotal:     errorsTotal,
	}
	m.RecordState(domain.InitialState())
	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordEvent(source string, event domain.Event) {
	m.EventsTotal.WithLabelValues(source, string(event.EventType())).Inc()
}

func (m *Metrics) RecordEffect(effect domain.Effect) {
	m.EffectsTotal.WithLabelValues(string(effect.EffectType())).Inc()
}

// RecordState updates the mode and connection gauges from a committed state.
func (m *Metrics) RecordState(state domain.State) {
	for _, mode := range domain.Modes() {
		value := 0.0
		if mode == state.Mode {
			value = 1
		}
		m.ModeActive.WithLabelValues(string(mode)).Set(value)
	}
	if state.Status == domain.StatusConnected {
		m.ClientAttached.Set(1)
	} else {
		m.ClientAttached.Set(0)
	}
}

// RecordFrame counts one relayed frame. Direction is "upstream", "downstream"
// or "playback".
func (m *Metrics) RecordFrame(direction string) {
	m.FramesTotal.WithLabelValues(direction).Inc()
}

func (m *Metrics) RecordRecording(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RecordingsTotal.WithLabelValues(op, status).Inc()
}

func (m *Metrics) RecordError(kind string) {
	m.ErrorsTotal.WithLabelValues(kind).Inc()
}
