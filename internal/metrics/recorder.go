// Package metrics exposes voice session telemetry as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tutorvoice/internal/domain"
)

// Recorder implements ports.Metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	StateTransitions *prometheus.CounterVec
	CurrentState     *prometheus.GaugeVec

	ReconnectsTotal *prometheus.CounterVec
	ReconnectDelay  prometheus.Histogram

	FramesTotal *prometheus.CounterVec
	ErrorsTotal *prometheus.CounterVec

	FallbacksTotal *prometheus.CounterVec

	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter
}

// NewRecorder registers every metric under namespace.
func NewRecorder(namespace string) *Recorder {
	if namespace == "" {
		namespace = "tutorvoice"
	}

	registry := prometheus.NewRegistry()

	stateTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Voice session state transitions",
		},
		[]string{"from", "to"},
	)

	currentState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "1 for the current voice session state, 0 otherwise",
		},
		[]string{"state"},
	)

	reconnectsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled, by attempt number",
		},
		[]string{"attempt"},
	)

	reconnectDelay := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconnect_delay_seconds",
			Help:      "Backoff delay before each reconnect",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 32},
		},
	)

	framesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_total",
			Help:      "Audio frames by direction and outcome",
		},
		[]string{"direction", "outcome"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_errors_total",
			Help:      "Voice errors raised, by kind",
		},
		[]string{"kind", "recoverable"},
	)

	fallbacksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Times voice fell back to text mode",
		},
		[]string{"reason"},
	)

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Voice sessions currently open",
		},
	)

	sessionsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Voice sessions opened",
		},
	)

	registry.MustRegister(
		stateTransitions,
		currentState,
		reconnectsTotal,
		reconnectDelay,
		framesTotal,
		errorsTotal,
		fallbacksTotal,
		sessionsActive,
		sessionsTotal,
		collectors.NewGoCollector(),
	)

	for _, state := range domain.SessionStates {
		currentState.WithLabelValues(string(state)).Set(0)
	}
	currentState.WithLabelValues(string(domain.SessionStateIdle)).Set(1)

	return &Recorder{
		registry:         registry,
		StateTransitions: stateTransitions,
		CurrentState:     currentState,
		ReconnectsTotal:  reconnectsTotal,
		ReconnectDelay:   reconnectDelay,
		FramesTotal:      framesTotal,
		ErrorsTotal:      errorsTotal,
		FallbacksTotal:   fallbacksTotal,
		SessionsActive:   sessionsActive,
		SessionsTotal:    sessionsTotal,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) StateTransition(from, to domain.SessionState) {
	r.StateTransitions.WithLabelValues(string(from), string(to)).Inc()
	r.CurrentState.WithLabelValues(string(from)).Set(0)
	r.CurrentState.WithLabelValues(string(to)).Set(1)
}

func (r *Recorder) ReconnectScheduled(attempt int, delay time.Duration) {
	r.ReconnectsTotal.WithLabelValues(attemptLabel(attempt)).Inc()
	r.ReconnectDelay.Observe(delay.Seconds())
}

func (r *Recorder) FrameSent() {
	r.FramesTotal.WithLabelValues("outbound", "sent").Inc()
}

func (r *Recorder) FrameDropped() {
	r.FramesTotal.WithLabelValues("outbound", "dropped").Inc()
}

func (r *Recorder) FramePlayed() {
	r.FramesTotal.WithLabelValues("inbound", "played").Inc()
}

func (r *Recorder) VoiceError(kind domain.ErrorKind, recoverable bool) {
	label := "false"
	if recoverable {
		label = "true"
	}
	r.ErrorsTotal.WithLabelValues(string(kind), label).Inc()
}

func (r *Recorder) Fallback(reason string) {
	r.FallbacksTotal.WithLabelValues(reason).Inc()
}

func (r *Recorder) SessionOpened() {
	r.SessionsActive.Inc()
	r.SessionsTotal.Inc()
}

func (r *Recorder) SessionClosed() {
	r.SessionsActive.Dec()
}

// attemptLabel keeps attempt cardinality bounded.
func attemptLabel(attempt int) string {
	switch {
	case attempt <= 0:
		return "0"
	case attempt >= 10:
		return "10+"
	default:
		return strconv.Itoa(attempt)
	}
}
