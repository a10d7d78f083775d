// Package chat runs one retrieval-augmented chat turn and serves it over
// Server-Sent Events and WebSocket.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/miskibin/sejmofil-sub001/internal/auth"
	"github.com/miskibin/sejmofil-sub001/internal/conversation"
	"github.com/miskibin/sejmofil-sub001/internal/llm"
	"github.com/miskibin/sejmofil-sub001/internal/observability"
	"github.com/miskibin/sejmofil-sub001/internal/prompt"
	"github.com/miskibin/sejmofil-sub001/internal/retrieval"
	"github.com/miskibin/sejmofil-sub001/internal/stream"
)

// Progress labels shown to the user while a turn is prepared.
const (
	StatusInterpreting = "Parafrazowanie pytania..."
	StatusSearching    = "Przeszukiwanie bazy danych..."
	StatusGenerating   = "Generowanie odpowiedzi..."
)

// Client-facing error messages. Internal details are only logged.
const (
	msgInvalidRequest = "Nieprawidłowe zapytanie."
	msgNoGrounding    = "Nie znaleziono dokumentów źródłowych dla tego pytania."
	msgGeneration     = "Wystąpił błąd podczas generowania odpowiedzi. Spróbuj ponownie."
	msgInternal       = "Wystąpił nieoczekiwany błąd."
)

// ErrNoGrounding ends a turn when grounding is required and retrieval
// found nothing.
var ErrNoGrounding = errors.New("no grounding documents")

// Retriever embeds the query and ranks context documents.
// *retrieval.Retriever implements it.
type Retriever interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Retrieve(ctx context.Context, vec []float32, k int) retrieval.Result
}

// TurnRecorder persists turns without blocking. *conversation.Recorder
// implements it.
type TurnRecorder interface {
	Record(t conversation.Turn) bool
}

// Config holds per-turn generation settings.
type Config struct {
	TopK             int
	Model            string
	MaxTokens        int
	Temperature      float32
	RequireGrounding bool
}

// Pipeline orchestrates a chat turn: retrieve, assemble, generate, then
// finalize with references and done. It holds no per-request state and
// is safe for concurrent use.
type Pipeline struct {
	retriever Retriever
	assembler *prompt.Assembler
	provider  llm.Provider
	recorder  TurnRecorder
	cfg       Config
	endpoint  observability.Endpoint
	logger    zerolog.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder enables turn recording for requests with a conversation ID.
func WithRecorder(r TurnRecorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithLogger sets the pipeline logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = l.With().Str("component", "chat").Logger() }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock overrides the time source used for the prompt date and
// latency measurements.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates a Pipeline.
func NewPipeline(r Retriever, a *prompt.Assembler, provider llm.Provider, cfg Config, opts ...Option) *Pipeline {
	if cfg.TopK <= 0 {
		cfg.TopK = retrieval.DefaultTopK
	}
	p := &Pipeline{
		retriever: r,
		assembler: a,
		provider:  provider,
		cfg:       cfg,
		endpoint:  observability.EndpointSSE,
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ForEndpoint returns a copy of p that labels its metrics with e.
func (p *Pipeline) ForEndpoint(e observability.Endpoint) *Pipeline {
	c := *p
	c.endpoint = e
	return &c
}

// emitter forwards events to a sink until a terminal event was sent, a
// send failed or the turn's context was cancelled.
type emitter struct {
	ctx    context.Context
	sink   stream.Sink
	closed bool
}

func (e *emitter) send(ev stream.Event) error {
	if e.closed {
		return io.ErrClosedPipe
	}
	if err := e.ctx.Err(); err != nil {
		e.closed = true
		return err
	}
	if err := e.sink.Send(ev); err != nil {
		e.closed = true
		return err
	}
	if stream.Terminal(ev) {
		e.closed = true
	}
	return nil
}

// Run executes one turn, writing its events to sink. The caller has
// already authorized id. Run returns nil when the turn ended with done,
// and otherwise the reason it did not.
func (p *Pipeline) Run(ctx context.Context, id auth.Identity, req ChatRequest, sink stream.Sink) (err error) {
	start := p.now()
	log := p.logger.With().
		Str("user_id", id.UserID).
		Str("endpoint", string(p.endpoint)).
		Logger()
	if req.ConversationID != "" {
		log = log.With().Str("conversation_id", req.ConversationID).Logger()
	}

	p.metrics.StreamStarted(p.endpoint)
	defer p.metrics.StreamEnded(p.endpoint)
	defer func() {
		success := err == nil
		p.metrics.RecordRequest(p.endpoint, success)
		p.metrics.RecordStreamDuration(p.endpoint, p.now().Sub(start).Seconds(), success)
	}()

	em := &emitter{ctx: ctx, sink: sink}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("chat turn panicked")
			p.metrics.RecordError(p.endpoint, observability.ErrorCodeInternal)
			_ = em.send(stream.Error{Message: msgInternal})
			err = fmt.Errorf("chat turn panicked: %v", r)
		}
	}()

	if err := req.Validate(); err != nil {
		p.metrics.RecordError(p.endpoint, observability.ErrorCodeValidation)
		_ = em.send(stream.Error{Message: msgInvalidRequest})
		return err
	}

	if err := em.send(stream.Status{Message: StatusInterpreting}); err != nil {
		return p.abandoned(log, err)
	}
	if err := em.send(stream.Status{Message: StatusSearching}); err != nil {
		return p.abandoned(log, err)
	}

	result := p.retrieve(ctx, log, req.Query())
	if ctx.Err() != nil {
		return p.abandoned(log, ctx.Err())
	}
	if p.cfg.RequireGrounding && len(result) == 0 {
		p.metrics.RecordError(p.endpoint, observability.ErrorCodeNoGrounding)
		log.Info().Msg("no grounding documents, refusing to answer")
		_ = em.send(stream.Error{Message: msgNoGrounding})
		return ErrNoGrounding
	}

	messages := p.assembler.Assemble(result, req.History(), p.now())

	if err := em.send(stream.Status{Message: StatusGenerating}); err != nil {
		return p.abandoned(log, err)
	}

	answer, err := p.generate(ctx, log, em, messages, start)
	if err != nil {
		return err
	}

	if err := em.send(stream.References{Items: result.References()}); err != nil {
		return p.abandoned(log, err)
	}

	p.record(id, req, answer)

	if err := em.send(stream.Done{Success: true}); err != nil {
		return p.abandoned(log, err)
	}
	return nil
}

// retrieve embeds the query and ranks documents. An embedding failure
// degrades to an empty result.
func (p *Pipeline) retrieve(ctx context.Context, log zerolog.Logger, query string) retrieval.Result {
	vec, err := p.retriever.Embed(ctx, query)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Msg("query embedding failed, continuing without context")
			p.metrics.RecordError(p.endpoint, observability.ErrorCodeEmbedding)
		}
		return retrieval.Result{}
	}
	return p.retriever.Retrieve(ctx, vec, p.cfg.TopK)
}

// generate streams the completion as content events and returns the
// full answer. Cancelling ctx closes the provider stream so a pending
// Recv returns promptly.
func (p *Pipeline) generate(ctx context.Context, log zerolog.Logger, em *emitter, messages []llm.Message, start time.Time) (string, error) {
	s, err := p.provider.Stream(ctx, llm.Request{
		Model:       p.cfg.Model,
		Messages:    messages,
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", p.abandoned(log, ctx.Err())
		}
		return "", p.generationFailed(log, em, err)
	}
	defer s.Close()
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	var answer strings.Builder
	first := true
	for {
		delta, err := s.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", p.abandoned(log, ctx.Err())
			}
			return "", p.generationFailed(log, em, err)
		}

		if first {
			p.metrics.RecordTimeToFirstToken(p.endpoint, p.now().Sub(start).Seconds())
			first = false
		}
		if err := em.send(stream.Content{Delta: delta}); err != nil {
			return "", p.abandoned(log, err)
		}
		p.metrics.RecordContent(p.endpoint)
		answer.WriteString(delta)
	}

	// A provider may report a clean end after the client went away.
	if ctx.Err() != nil {
		return "", p.abandoned(log, ctx.Err())
	}
	return answer.String(), nil
}

// record queues the user question and the answer. It only runs for
// requests carrying a conversation ID.
func (p *Pipeline) record(id auth.Identity, req ChatRequest, answer string) {
	if p.recorder == nil || req.ConversationID == "" {
		return
	}
	p.recorder.Record(conversation.Turn{
		ConversationID: req.ConversationID,
		UserID:         id.UserID,
		Role:           string(llm.RoleUser),
		Content:        req.Query(),
	})
	p.recorder.Record(conversation.Turn{
		ConversationID: req.ConversationID,
		UserID:         id.UserID,
		Role:           string(llm.RoleAssistant),
		Content:        answer,
	})
}

func (p *Pipeline) generationFailed(log zerolog.Logger, em *emitter, err error) error {
	log.Error().Err(err).Str("provider", p.provider.Name()).Msg("generation failed")
	p.metrics.RecordError(p.endpoint, observability.ErrorCodeLLM)
	_ = em.send(stream.Error{Message: msgGeneration})
	return fmt.Errorf("generation: %w", err)
}

// abandoned handles a client that went away: nothing more is sent.
func (p *Pipeline) abandoned(log zerolog.Logger, err error) error {
	log.Debug().Err(err).Msg("client disconnected")
	p.metrics.RecordClientDisconnect(p.endpoint)
	return err
}
