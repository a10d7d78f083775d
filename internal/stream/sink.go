package stream

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Sink receives the events of one chat turn in emission order.
type Sink interface {
	Send(e Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(e Event) error

func (f SinkFunc) Send(e Event) error { return f(e) }

// SetSSEHeaders sets the headers for an event stream response.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// SSESink writes each event as one frame and flushes it immediately.
type SSESink struct {
	w       io.Writer
	flusher http.Flusher
	mu      sync.Mutex
}

// NewSSESink wraps a response writer that supports flushing.
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &SSESink{w: w, flusher: flusher}, nil
}

func (s *SSESink) Send(e Event) error {
	frame, err := Frame(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(frame); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// WSSink writes each event envelope as one WebSocket text message.
type WSSink struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewWSSink wraps an upgraded connection.
func NewWSSink(conn *websocket.Conn) *WSSink {
	return &WSSink{conn: conn}
}

func (s *WSSink) Send(e Event) error {
	b, err := Encode(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("write websocket event: %w", err)
	}
	return nil
}

// ScanFrames decodes an event stream body, handing each event to fn as its
// frame completes. It stops at the first error from fn.
func ScanFrames(r io.Reader, fn func(Event) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var data bytes.Buffer
	flush := func() error {
		if data.Len() == 0 {
			return nil
		}
		e, err := Decode(data.Bytes())
		data.Reset()
		if err != nil {
			return err
		}
		return fn(e)
	}

	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return flush()
}
