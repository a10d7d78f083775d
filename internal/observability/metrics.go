// Package observability defines the Prometheus metrics of the chat pipeline.
//
// All recording methods are safe to call on a nil *Metrics, so components
// can run without metrics in tests and CLI commands.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace   = "sejmofil"
	streamingSubsystem = "chat"
)

// Endpoint labels the transport a stream was served on.
type Endpoint string

const (
	EndpointSSE       Endpoint = "sse"
	EndpointWebSocket Endpoint = "websocket"
	EndpointCLI       Endpoint = "cli"
)

// ErrorCode labels the reason a stream ended with an error event.
type ErrorCode string

const (
	ErrorCodeValidation   ErrorCode = "validation"
	ErrorCodeEmbedding    ErrorCode = "embedding"
	ErrorCodeLLM          ErrorCode = "llm_error"
	ErrorCodeNoGrounding  ErrorCode = "no_grounding"
	ErrorCodeInternal     ErrorCode = "internal"
	ErrorCodeUnauthorized ErrorCode = "unauthorized"
)

// Metrics holds the streaming pipeline collectors.
type Metrics struct {
	// RequestsTotal counts chat turns by endpoint and final status.
	RequestsTotal *prometheus.CounterVec

	// ErrorsTotal counts error events and rejected requests by code.
	ErrorsTotal *prometheus.CounterVec

	// ContentEventsTotal counts content deltas forwarded to clients.
	ContentEventsTotal *prometheus.CounterVec

	// ClientDisconnectsTotal counts turns abandoned by the client.
	ClientDisconnectsTotal *prometheus.CounterVec

	// RetrievalDegradedTotal counts per-index retrieval failures.
	RetrievalDegradedTotal *prometheus.CounterVec

	// TurnsRecordedTotal counts turn recorder outcomes (ok, failed, dropped).
	TurnsRecordedTotal *prometheus.CounterVec

	// TimeToFirstTokenSeconds measures latency from request to first content delta.
	TimeToFirstTokenSeconds *prometheus.HistogramVec

	// StreamDurationSeconds measures full turn duration.
	StreamDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks turns currently streaming.
	ActiveStreams *prometheus.GaugeVec
}

// NewMetrics creates and registers all collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "requests_total",
				Help:      "Total chat turns by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		ErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "errors_total",
				Help:      "Total errors by endpoint and error code",
			},
			[]string{"endpoint", "code"},
		),
		ContentEventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "content_events_total",
				Help:      "Total content deltas sent to clients",
			},
			[]string{"endpoint"},
		),
		ClientDisconnectsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Total client disconnections during streaming",
			},
			[]string{"endpoint"},
		),
		RetrievalDegradedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "retrieval",
				Name:      "degraded_total",
				Help:      "Total per-index retrieval failures",
			},
			[]string{"index"},
		),
		TurnsRecordedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "recorder",
				Name:      "turns_total",
				Help:      "Total turn recorder outcomes",
			},
			[]string{"status"},
		),
		TimeToFirstTokenSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "time_to_first_token_seconds",
				Help:      "Time from request to first content delta in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"endpoint"},
		),
		StreamDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Total turn duration in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"endpoint", "status"},
		),
		ActiveStreams: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "active_streams",
				Help:      "Number of turns currently streaming",
			},
			[]string{"endpoint"},
		),
	}
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func (m *Metrics) RecordRequest(endpoint Endpoint, success bool) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(string(endpoint), statusLabel(success)).Inc()
}

func (m *Metrics) RecordError(endpoint Endpoint, code ErrorCode) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
}

func (m *Metrics) RecordContent(endpoint Endpoint) {
	if m == nil {
		return
	}
	m.ContentEventsTotal.WithLabelValues(string(endpoint)).Inc()
}

func (m *Metrics) RecordClientDisconnect(endpoint Endpoint) {
	if m == nil {
		return
	}
	m.ClientDisconnectsTotal.WithLabelValues(string(endpoint)).Inc()
}

func (m *Metrics) RecordRetrievalDegraded(index string) {
	if m == nil {
		return
	}
	m.RetrievalDegradedTotal.WithLabelValues(index).Inc()
}

// RecordTurn counts a recorder outcome: "ok", "failed" or "dropped".
func (m *Metrics) RecordTurn(status string) {
	if m == nil {
		return
	}
	m.TurnsRecordedTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordTimeToFirstToken(endpoint Endpoint, seconds float64) {
	if m == nil {
		return
	}
	m.TimeToFirstTokenSeconds.WithLabelValues(string(endpoint)).Observe(seconds)
}

func (m *Metrics) RecordStreamDuration(endpoint Endpoint, seconds float64, success bool) {
	if m == nil {
		return
	}
	m.StreamDurationSeconds.WithLabelValues(string(endpoint), statusLabel(success)).Observe(seconds)
}

func (m *Metrics) StreamStarted(endpoint Endpoint) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(string(endpoint)).Inc()
}

func (m *Metrics) StreamEnded(endpoint Endpoint) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(string(endpoint)).Dec()
}
