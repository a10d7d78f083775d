package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewMetrics(reg), reg
}

func TestRecordRequest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordRequest(EndpointSSE, true)
	m.RecordRequest(EndpointSSE, true)
	m.RecordRequest(EndpointSSE, false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("sse", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("sse", "error")))
}

func TestRecordErrorAndDegraded(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordError(EndpointWebSocket, ErrorCodeLLM)
	m.RecordRetrievalDegraded("print")
	m.RecordRetrievalDegraded("print")
	m.RecordTurn("dropped")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("websocket", "llm_error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RetrievalDegradedTotal.WithLabelValues("print")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsRecordedTotal.WithLabelValues("dropped")))
}

func TestActiveStreams(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.StreamStarted(EndpointSSE)
	m.StreamStarted(EndpointSSE)
	m.StreamEnded(EndpointSSE)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveStreams.WithLabelValues("sse")))
}

func TestHistograms(t *testing.T) {
	m, reg := newTestMetrics(t)

	m.RecordTimeToFirstToken(EndpointSSE, 0.3)
	m.RecordStreamDuration(EndpointSSE, 4.2, true)

	count, err := testutil.GatherAndCount(reg,
		"sejmofil_chat_time_to_first_token_seconds",
		"sejmofil_chat_stream_duration_seconds",
	)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest(EndpointSSE, true)
		m.RecordError(EndpointSSE, ErrorCodeInternal)
		m.RecordContent(EndpointSSE)
		m.RecordClientDisconnect(EndpointSSE)
		m.RecordRetrievalDegraded("topic")
		m.RecordTurn("ok")
		m.RecordTimeToFirstToken(EndpointSSE, 1)
		m.RecordStreamDuration(EndpointSSE, 1, false)
		m.StreamStarted(EndpointSSE)
		m.StreamEnded(EndpointSSE)
	})
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}
