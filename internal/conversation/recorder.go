package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/miskibin/sejmofil-sub001/internal/observability"
)

const (
	defaultQueueSize    = 256
	defaultWriteTimeout = 5 * time.Second
)

// TurnWriter persists a single turn. *Store implements it.
type TurnWriter interface {
	WriteTurn(ctx context.Context, t Turn) error
}

// Recorder persists turns in the background. Record never blocks the
// caller: turns are queued and written by a single worker, and dropped
// when the queue is full.
type Recorder struct {
	writer    TurnWriter
	queueSize int
	timeout   time.Duration
	logger    zerolog.Logger
	metrics   *observability.Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan Turn
	done   chan struct{}
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithQueueSize sets the number of turns that can wait for the worker.
func WithQueueSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithWriteTimeout bounds each individual write.
func WithWriteTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger used for write failures and drops.
func WithLogger(l zerolog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = l.With().Str("component", "recorder").Logger() }
}

// WithMetrics records turn outcomes.
func WithMetrics(m *observability.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// NewRecorder starts a recorder writing through w.
func NewRecorder(w TurnWriter, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		writer:    w,
		queueSize: defaultQueueSize,
		timeout:   defaultWriteTimeout,
		logger:    zerolog.Nop(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.queue = make(chan Turn, r.queueSize)

	go r.run()
	return r
}

// Record enqueues t and reports whether it was accepted. Turns without a
// conversation ID are ignored.
func (r *Recorder) Record(t Turn) bool {
	if t.ConversationID == "" {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}

	select {
	case r.queue <- t:
		return true
	default:
		r.logger.Warn().
			Str("conversation_id", t.ConversationID).
			Str("role", t.Role).
			Msg("recorder queue full, dropping turn")
		r.metrics.RecordTurn("dropped")
		return false
	}
}

// Close stops accepting turns and waits until queued turns are written
// or ctx is done.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for t := range r.queue {
		r.write(t)
	}
}

// write runs on a context detached from any request so that a finished
// or cancelled stream does not abort the write.
func (r *Recorder) write(t Turn) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.writer.WriteTurn(ctx, t); err != nil {
		r.logger.Warn().Err(err).
			Str("conversation_id", t.ConversationID).
			Str("user_id", t.UserID).
			Msg("failed to record turn")
		r.metrics.RecordTurn("failed")
		return
	}
	r.metrics.RecordTurn("ok")
}
