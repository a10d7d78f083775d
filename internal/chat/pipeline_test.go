package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miskibin/sejmofil-sub001/internal/auth"
	"github.com/miskibin/sejmofil-sub001/internal/conversation"
	"github.com/miskibin/sejmofil-sub001/internal/llm"
	"github.com/miskibin/sejmofil-sub001/internal/observability"
	"github.com/miskibin/sejmofil-sub001/internal/prompt"
	"github.com/miskibin/sejmofil-sub001/internal/retrieval"
	"github.com/miskibin/sejmofil-sub001/internal/stream"
	"github.com/miskibin/sejmofil-sub001/internal/vectordb"
)

var testNow = time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

// fakeRetriever returns a fixed result.
type fakeRetriever struct {
	result   retrieval.Result
	embedErr error
}

func (f *fakeRetriever) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeRetriever) Retrieve(ctx context.Context, vec []float32, k int) retrieval.Result {
	if len(f.result) > k {
		return f.result[:k]
	}
	return f.result
}

// scriptedStream yields deltas, then err (or io.EOF). With block set it
// waits for Close instead of ending.
type scriptedStream struct {
	deltas []string
	err    error
	block  bool

	i      int
	closed chan struct{}
	once   sync.Once
}

func newScriptedStream(deltas []string, err error, block bool) *scriptedStream {
	return &scriptedStream{deltas: deltas, err: err, block: block, closed: make(chan struct{})}
}

func (s *scriptedStream) Recv() (string, error) {
	if s.i < len(s.deltas) {
		d := s.deltas[s.i]
		s.i++
		return d, nil
	}
	if s.err != nil {
		return "", s.err
	}
	if s.block {
		<-s.closed
		return "", context.Canceled
	}
	return "", io.EOF
}

func (s *scriptedStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *scriptedStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type scriptedProvider struct {
	stream    *scriptedStream
	streamErr error
	panicMsg  string

	mu      sync.Mutex
	calls   int
	lastReq llm.Request
}

func (p *scriptedProvider) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	if p.panicMsg != "" {
		panic(p.panicMsg)
	}
	p.mu.Lock()
	p.calls++
	p.lastReq = req
	p.mu.Unlock()
	if p.streamErr != nil {
		return nil, p.streamErr
	}
	return p.stream, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

// collectingSink records events.
type collectingSink struct {
	mu     sync.Mutex
	events []stream.Event
	onSend func(stream.Event) error
}

func (s *collectingSink) Send(e stream.Event) error {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	if s.onSend != nil {
		return s.onSend(e)
	}
	return nil
}

func (s *collectingSink) kinds() []stream.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]stream.Kind, len(s.events))
	for i, e := range s.events {
		out[i] = e.Kind()
	}
	return out
}

func (s *collectingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type fakeRecorder struct {
	sink    *collectingSink
	turns   []conversation.Turn
	atEvent []int
}

func (r *fakeRecorder) Record(t conversation.Turn) bool {
	r.turns = append(r.turns, t)
	r.atEvent = append(r.atEvent, r.sink.count())
	return true
}

func userRequest(q string) ChatRequest {
	return ChatRequest{Messages: []ChatMessage{{Role: llm.RoleUser, Content: q}}}
}

func sampleResult() retrieval.Result {
	changed := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	return retrieval.Result{
		{ID: "p1", Type: vectordb.TypePrint, Title: "Druk nr 123", Content: "Projekt ustawy.", URL: "https://sejmofil.pl/druki/123", ChangeDate: &changed, Score: 0.91},
		{ID: "t1", Type: vectordb.TypeTopic, Title: "Posiedzenia Sejmu", Content: "Harmonogram posiedzeń.", URL: "https://sejmofil.pl/tematy/posiedzenia", Score: 0.85},
		{ID: "o1", Type: vectordb.TypeOrganization, Title: "Prezydium Sejmu", Content: "Organ Sejmu.", Score: 0.72},
	}
}

func newTestPipeline(r Retriever, p llm.Provider, cfg Config, opts ...Option) *Pipeline {
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewPipeline(r, prompt.New(prompt.DefaultExcerptChars, nil), p, cfg, opts...)
}

var user = auth.Identity{UserID: "u1"}

func TestRun_EndToEndSequence(t *testing.T) {
	provider := &scriptedProvider{stream: newScriptedStream([]string{"Ostatnie posiedzenie ", "odbyło się wczoraj [2]."}, nil, false)}
	rec := &fakeRecorder{}
	sink := &collectingSink{}
	rec.sink = sink
	p := newTestPipeline(&fakeRetriever{result: sampleResult()}, provider, Config{TopK: 5}, WithRecorder(rec))

	err := p.Run(context.Background(), user, userRequest("Kiedy było ostatnie posiedzenie?"), sink)
	require.NoError(t, err)

	assert.Equal(t, []stream.Kind{
		stream.KindStatus, stream.KindStatus, stream.KindStatus,
		stream.KindContent, stream.KindContent,
		stream.KindReferences, stream.KindDone,
	}, sink.kinds())

	assert.Equal(t, stream.Status{Message: StatusInterpreting}, sink.events[0])
	assert.Equal(t, stream.Status{Message: StatusSearching}, sink.events[1])
	assert.Equal(t, stream.Status{Message: StatusGenerating}, sink.events[2])

	var answer strings.Builder
	for _, e := range sink.events {
		if c, ok := e.(stream.Content); ok {
			answer.WriteString(c.Delta)
		}
	}
	assert.Equal(t, "Ostatnie posiedzenie odbyło się wczoraj [2].", answer.String())
	assert.Equal(t, stream.Done{Success: true}, sink.events[len(sink.events)-1])
	assert.Empty(t, rec.turns, "no conversationId, recorder must not be invoked")
	assert.True(t, provider.stream.isClosed())
}

func TestRun_FailureAfterTwoDeltas(t *testing.T) {
	provider := &scriptedProvider{stream: newScriptedStream([]string{"Ala", " ma"}, errors.New("connection reset"), false)}
	sink := &collectingSink{}
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	p := newTestPipeline(&fakeRetriever{result: sampleResult()}, provider, Config{}, WithMetrics(m))

	err := p.Run(context.Background(), user, userRequest("pytanie"), sink)
	require.Error(t, err)

	assert.Equal(t, []stream.Kind{
		stream.KindStatus, stream.KindStatus, stream.KindStatus,
		stream.KindContent, stream.KindContent,
		stream.KindError,
	}, sink.kinds())
	assert.Equal(t, stream.Content{Delta: "Ala"}, sink.events[3])
	assert.Equal(t, stream.Content{Delta: " ma"}, sink.events[4])
	assert.Equal(t, stream.Error{Message: msgGeneration}, sink.events[5])
	assert.NotContains(t, sink.events[5].(stream.Error).Message, "connection reset")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("sse", "llm_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("sse", "error")))
}

func TestRun_ProviderOpenFailure(t *testing.T) {
	provider := &scriptedProvider{streamErr: errors.New("401 from provider")}
	sink := &collectingSink{}
	p := newTestPipeline(&fakeRetriever{}, provider, Config{})

	require.Error(t, p.Run(context.Background(), user, userRequest("pytanie"), sink))
	assert.Equal(t, []stream.Kind{stream.KindStatus, stream.KindStatus, stream.KindStatus, stream.KindError}, sink.kinds())
}

// failingIndex always errors.
type failingIndex struct{ t vectordb.DocumentType }

func (f failingIndex) Type() vectordb.DocumentType { return f.t }
func (f failingIndex) QueryEmbedding(context.Context, []float32, int) ([]vectordb.Match, error) {
	return nil, errors.New("index unavailable")
}

type constEmbedder struct{}

func (constEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}
func (constEmbedder) Dimensions() int { return 2 }
func (constEmbedder) Name() string    { return "const" }

func TestRun_AllIndicesFailStillCompletes(t *testing.T) {
	r := retrieval.New(constEmbedder{}, []vectordb.Index{
		failingIndex{vectordb.TypePrint}, failingIndex{vectordb.TypeTopic}, failingIndex{vectordb.TypeOrganization},
	})
	provider := &scriptedProvider{stream: newScriptedStream([]string{"Nie wiem."}, nil, false)}
	sink := &collectingSink{}
	p := newTestPipeline(r, provider, Config{})

	require.NoError(t, p.Run(context.Background(), user, userRequest("pytanie"), sink))

	kinds := sink.kinds()
	require.Len(t, kinds, 6)
	refs, ok := sink.events[4].(stream.References)
	require.True(t, ok)
	assert.Empty(t, refs.Items)
	assert.NotNil(t, refs.Items)
	assert.Equal(t, stream.Done{Success: true}, sink.events[5])
	assert.Contains(t, provider.lastReq.Messages[0].Content, "Nie znaleziono dokumentów źródłowych")
}

func TestRun_EmbeddingFailureDegrades(t *testing.T) {
	provider := &scriptedProvider{stream: newScriptedStream([]string{"odpowiedź"}, nil, false)}
	sink := &collectingSink{}
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	p := newTestPipeline(&fakeRetriever{embedErr: errors.New("embed down"), result: sampleResult()}, provider, Config{}, WithMetrics(m))

	require.NoError(t, p.Run(context.Background(), user, userRequest("pytanie"), sink))
	refs := sink.events[len(sink.events)-2].(stream.References)
	assert.Empty(t, refs.Items)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("sse", "embedding")))
}

func TestRun_CancellationDuringGeneration(t *testing.T) {
	st := newScriptedStream([]string{"pierwszy", "drugi"}, nil, true)
	provider := &scriptedProvider{stream: st}
	rec := &fakeRecorder{}
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &collectingSink{onSend: func(e stream.Event) error {
		if _, ok := e.(stream.Content); ok {
			cancel()
		}
		return nil
	}}
	rec.sink = sink
	p := newTestPipeline(&fakeRetriever{result: sampleResult()}, provider, Config{}, WithRecorder(rec), WithMetrics(m))

	req := userRequest("pytanie")
	req.ConversationID = "c1"

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, user, req, sink) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	for _, k := range sink.kinds() {
		assert.NotEqual(t, stream.KindReferences, k)
		assert.NotEqual(t, stream.KindDone, k)
		assert.NotEqual(t, stream.KindError, k)
	}
	assert.Equal(t, stream.KindContent, sink.kinds()[sink.count()-1], "nothing is sent after the client left")
	assert.True(t, st.isClosed(), "provider stream must be closed")
	assert.Empty(t, rec.turns)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClientDisconnectsTotal.WithLabelValues("sse")))
}

func TestRun_CancellationWhileWaitingForDelta(t *testing.T) {
	st := newScriptedStream(nil, nil, true)
	provider := &scriptedProvider{stream: st}
	ctx, cancel := context.WithCancel(context.Background())
	sink := &collectingSink{onSend: func(e stream.Event) error {
		if s, ok := e.(stream.Status); ok && s.Message == StatusGenerating {
			go func() {
				time.Sleep(20 * time.Millisecond)
				cancel()
			}()
		}
		return nil
	}}
	p := newTestPipeline(&fakeRetriever{}, provider, Config{})

	err := p.Run(ctx, user, userRequest("pytanie"), sink)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, st.isClosed())
	assert.Equal(t, 3, sink.count())
}

func TestRun_RecordsTurnAfterReferences(t *testing.T) {
	provider := &scriptedProvider{stream: newScriptedStream([]string{"Odpowiedź", " pełna."}, nil, false)}
	sink := &collectingSink{}
	rec := &fakeRecorder{sink: sink}
	p := newTestPipeline(&fakeRetriever{result: sampleResult()}, provider, Config{}, WithRecorder(rec))

	req := ChatRequest{
		Messages: []ChatMessage{
			{Role: llm.RoleUser, Content: "Pierwsze pytanie"},
			{Role: llm.RoleAssistant, Content: "Pierwsza odpowiedź"},
			{Role: llm.RoleUser, Content: "Drugie pytanie"},
		},
		ConversationID: "c1",
	}
	require.NoError(t, p.Run(context.Background(), user, req, sink))

	require.Len(t, rec.turns, 2)
	assert.Equal(t, conversation.Turn{ConversationID: "c1", UserID: "u1", Role: "user", Content: "Drugie pytanie"}, rec.turns[0])
	assert.Equal(t, conversation.Turn{ConversationID: "c1", UserID: "u1", Role: "assistant", Content: "Odpowiedź pełna."}, rec.turns[1])

	// Recorded once the references event went out, before done.
	refsAt := 0
	for i, k := range sink.kinds() {
		if k == stream.KindReferences {
			refsAt = i + 1
		}
	}
	assert.Equal(t, refsAt, rec.atEvent[0])
}

func TestRun_CitationNumberingRoundTrip(t *testing.T) {
	provider := &scriptedProvider{stream: newScriptedStream([]string{"[1][2][3]"}, nil, false)}
	sink := &collectingSink{}
	result := sampleResult()
	p := newTestPipeline(&fakeRetriever{result: result}, provider, Config{TopK: 5})

	require.NoError(t, p.Run(context.Background(), user, userRequest("pytanie"), sink))

	var refs stream.References
	for _, e := range sink.events {
		if r, ok := e.(stream.References); ok {
			refs = r
		}
	}
	require.Len(t, refs.Items, len(result))

	system := provider.lastReq.Messages[0].Content
	last := -1
	for i, ref := range refs.Items {
		marker := "[" + string(rune('1'+i)) + "] (" + prompt.TypeLabel(ref.Type) + ") " + ref.Title
		pos := strings.Index(system, marker)
		require.GreaterOrEqual(t, pos, 0, "missing %q", marker)
		assert.Greater(t, pos, last)
		last = pos
		assert.Equal(t, result[i].Score, ref.Score)
		assert.Equal(t, result[i].URL, ref.URL)
	}
}

func TestRun_TopKBoundsReferences(t *testing.T) {
	provider := &scriptedProvider{stream: newScriptedStream([]string{"ok"}, nil, false)}
	sink := &collectingSink{}
	p := newTestPipeline(&fakeRetriever{result: sampleResult()}, provider, Config{TopK: 2})

	require.NoError(t, p.Run(context.Background(), user, userRequest("pytanie"), sink))
	refs := sink.events[len(sink.events)-2].(stream.References)
	assert.Len(t, refs.Items, 2)
}

func TestRun_RequireGrounding(t *testing.T) {
	provider := &scriptedProvider{stream: newScriptedStream([]string{"x"}, nil, false)}
	sink := &collectingSink{}
	p := newTestPipeline(&fakeRetriever{}, provider, Config{RequireGrounding: true})

	err := p.Run(context.Background(), user, userRequest("pytanie"), sink)
	assert.ErrorIs(t, err, ErrNoGrounding)
	assert.Equal(t, []stream.Kind{stream.KindStatus, stream.KindStatus, stream.KindError}, sink.kinds())
	assert.Equal(t, stream.Error{Message: msgNoGrounding}, sink.events[2])
	assert.Zero(t, provider.calls)
}

func TestRun_InvalidRequest(t *testing.T) {
	sink := &collectingSink{}
	p := newTestPipeline(&fakeRetriever{}, &scriptedProvider{}, Config{})

	err := p.Run(context.Background(), user, ChatRequest{}, sink)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, []stream.Kind{stream.KindError}, sink.kinds())
}

func TestRun_PanicBecomesErrorEvent(t *testing.T) {
	sink := &collectingSink{}
	p := newTestPipeline(&fakeRetriever{}, &scriptedProvider{panicMsg: "boom"}, Config{})

	err := p.Run(context.Background(), user, userRequest("pytanie"), sink)
	require.Error(t, err)
	kinds := sink.kinds()
	assert.Equal(t, stream.KindError, kinds[len(kinds)-1])
	assert.Equal(t, stream.Error{Message: msgInternal}, sink.events[len(kinds)-1])
}

func TestRun_SinkFailureStopsTurn(t *testing.T) {
	st := newScriptedStream([]string{"a", "b", "c"}, nil, false)
	sink := &collectingSink{onSend: func(e stream.Event) error {
		if _, ok := e.(stream.Content); ok {
			return errors.New("broken pipe")
		}
		return nil
	}}
	p := newTestPipeline(&fakeRetriever{}, &scriptedProvider{stream: st}, Config{})

	require.Error(t, p.Run(context.Background(), user, userRequest("pytanie"), sink))
	assert.Equal(t, 4, sink.count(), "no sends after a failed write")
	assert.True(t, st.isClosed())
}

func TestEmitter_NothingAfterTerminal(t *testing.T) {
	sink := &collectingSink{}
	em := &emitter{ctx: context.Background(), sink: sink}

	require.NoError(t, em.send(stream.Done{Success: true}))
	assert.Error(t, em.send(stream.Status{Message: "late"}))
	assert.Error(t, em.send(stream.Error{Message: "late"}))
	assert.Equal(t, 1, sink.count())
}

func TestChatRequest_Validate(t *testing.T) {
	tests := []struct {
		name string
		req  ChatRequest
		ok   bool
	}{
		{"single user message", userRequest("pytanie"), true},
		{"empty messages", ChatRequest{}, false},
		{"unknown role", ChatRequest{Messages: []ChatMessage{{Role: "tool", Content: "x"}}}, false},
		{"blank last message", ChatRequest{Messages: []ChatMessage{{Role: llm.RoleUser, Content: "  "}}}, false},
		{"no user message", ChatRequest{Messages: []ChatMessage{{Role: llm.RoleSystem, Content: "x"}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidRequest)
			}
		})
	}
}

func TestChatRequest_QueryIsLastUserMessage(t *testing.T) {
	req := ChatRequest{Messages: []ChatMessage{
		{Role: llm.RoleUser, Content: "pierwsze"},
		{Role: llm.RoleAssistant, Content: "odp"},
		{Role: llm.RoleUser, Content: " drugie "},
	}}
	assert.Equal(t, "drugie", req.Query())
	assert.Len(t, req.History(), 3)
	assert.Equal(t, " drugie ", req.History()[2].Content)
}
