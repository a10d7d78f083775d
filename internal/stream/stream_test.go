package stream

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miskibin/sejmofil-sub001/internal/retrieval"
	"github.com/miskibin/sejmofil-sub001/internal/vectordb"
)

// readFrames collects every event of an event stream body.
func readFrames(r io.Reader) ([]Event, error) {
	var events []Event
	err := ScanFrames(r, func(e Event) error {
		events = append(events, e)
		return nil
	})
	return events, err
}

func TestFrameExactBytes(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{"status", Status{Message: "Przeszukiwanie bazy danych..."}, `data: {"type":"status","data":{"message":"Przeszukiwanie bazy danych..."}}` + "\n\n"},
		{"content", Content{Delta: "Sejm "}, `data: {"type":"content","data":{"data":"Sejm "}}` + "\n\n"},
		{"empty references", References{}, `data: {"type":"references","data":{"references":[]}}` + "\n\n"},
		{"error", Error{Message: "Wystąpił błąd"}, `data: {"type":"error","data":{"message":"Wystąpił błąd"}}` + "\n\n"},
		{"done", Done{Success: true}, `data: {"type":"done","data":{"success":true}}` + "\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Frame(tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestFrameNeverSplitsLines(t *testing.T) {
	got, err := Frame(Content{Delta: "linia 1\nlinia 2\r\n\n"})
	require.NoError(t, err)

	body := strings.TrimSuffix(string(got), "\n\n")
	assert.NotContains(t, body, "\n")
	assert.True(t, strings.HasPrefix(body, "data: "))
}

func TestReferencesPayload(t *testing.T) {
	changed := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	b, err := Encode(References{Items: []retrieval.Reference{
		{Type: vectordb.TypePrint, Title: "Druk nr 12", URL: "https://sejmofil.pl/processes/12", Score: 0.87, ChangeDate: &changed},
	}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"references","data":{"references":[
		{"type":"print","title":"Druk nr 12","url":"https://sejmofil.pl/processes/12","score":0.87,"changeDate":"2026-10-14T00:00:00Z"}
	]}}`, string(b))
}

func TestDecodeRoundTrip(t *testing.T) {
	events := []Event{
		Status{Message: "Generowanie odpowiedzi..."},
		Content{Delta: "Tak."},
		References{Items: []retrieval.Reference{{Type: vectordb.TypeTopic, Title: "Podatki", Score: 0.5}}},
		Error{Message: "x"},
		Done{Success: true},
	}
	for _, e := range events {
		b, err := Encode(e)
		require.NoError(t, err)
		got, err := Decode(b)
		require.NoError(t, err)
		assert.Equal(t, e, got)
	}

	_, err := Decode([]byte(`{"type":"token","data":{}}`))
	assert.Error(t, err)
}

func TestTerminal(t *testing.T) {
	assert.True(t, Terminal(Done{Success: true}))
	assert.True(t, Terminal(Error{Message: "x"}))
	assert.False(t, Terminal(Status{}))
	assert.False(t, Terminal(Content{}))
	assert.False(t, Terminal(References{}))
}

func TestSSESink(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSSEHeaders(rec)

	sink, err := NewSSESink(rec)
	require.NoError(t, err)

	require.NoError(t, sink.Send(Status{Message: "Parafrazowanie pytania..."}))
	assert.True(t, rec.Flushed, "each frame is flushed immediately")
	require.NoError(t, sink.Send(Content{Delta: "A"}))
	require.NoError(t, sink.Send(Done{Success: true}))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	events, err := readFrames(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, []Event{Status{Message: "Parafrazowanie pytania..."}, Content{Delta: "A"}, Done{Success: true}}, events)
}

type noFlushWriter struct{ http.ResponseWriter }

func TestNewSSESinkRequiresFlusher(t *testing.T) {
	_, err := NewSSESink(noFlushWriter{})
	assert.Error(t, err)
}

func TestReadFramesIgnoresComments(t *testing.T) {
	body := ": ping\n\ndata: {\"type\":\"done\",\"data\":{\"success\":false}}\n\n"
	events, err := readFrames(strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, []Event{Done{Success: false}}, events)
}

func TestScanFramesStopsOnCallbackError(t *testing.T) {
	body := "data: {\"type\":\"content\",\"data\":{\"data\":\"a\"}}\n\n" +
		"data: {\"type\":\"content\",\"data\":{\"data\":\"b\"}}\n\n"
	stop := errors.New("stop")
	var seen int
	err := ScanFrames(strings.NewReader(body), func(e Event) error {
		seen++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, seen)
}

func TestSinkFunc(t *testing.T) {
	var got []Event
	s := SinkFunc(func(e Event) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, s.Send(Done{Success: true}))
	assert.Len(t, got, 1)
}

func TestWSSink(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		sink := NewWSSink(conn)
		_ = sink.Send(Status{Message: "Parafrazowanie pytania..."})
		_ = sink.Send(Done{Success: true})
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	for _, want := range []Event{Status{Message: "Parafrazowanie pytania..."}, Done{Success: true}} {
		mt, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, mt)
		got, err := Decode(msg)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
