// Package retrieval queries the per-type document indices and merges their
// candidates into a single ranked context for the prompt.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/miskibin/sejmofil-sub001/internal/embeddings"
	"github.com/miskibin/sejmofil-sub001/internal/observability"
	"github.com/miskibin/sejmofil-sub001/internal/vectordb"
)

const defaultTimeout = 5 * time.Second

// Retriever fans a query vector out to every index and merges the results.
type Retriever struct {
	embedder      embeddings.Embedder
	indices       []vectordb.Index
	perIndexLimit int
	timeout       time.Duration
	logger        zerolog.Logger
	metrics       *observability.Metrics
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithTimeout bounds embedding and each index query. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Retriever) { r.timeout = d }
}

// WithPerIndexLimit caps candidates taken from each index. Zero means
// the requested k.
func WithPerIndexLimit(n int) Option {
	return func(r *Retriever) { r.perIndexLimit = n }
}

// WithLogger sets the logger used for degradation warnings.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Retriever) { r.logger = l.With().Str("component", "retrieval").Logger() }
}

// WithMetrics records per-index failures.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Retriever) { r.metrics = m }
}

// New creates a Retriever over indices, queried in the given order.
func New(embedder embeddings.Embedder, indices []vectordb.Index, opts ...Option) *Retriever {
	r := &Retriever{
		embedder: embedder,
		indices:  indices,
		timeout:  defaultTimeout,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Embed turns the query text into a vector under the retrieval timeout.
func (r *Retriever) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return embeddings.EmbedQuery(ctx, r.embedder, text)
}

// Retrieve queries every index concurrently and returns the k best
// documents by descending score. A failing or slow index contributes
// nothing. Retrieve never fails; the worst case is an empty result.
func (r *Retriever) Retrieve(ctx context.Context, vec []float32, k int) Result {
	if k <= 0 {
		k = DefaultTopK
	}
	limit := k
	if r.perIndexLimit > 0 {
		limit = r.perIndexLimit
	}

	perIndex := make([][]vectordb.Match, len(r.indices))
	failed := make([]bool, len(r.indices))

	// Goroutines never return an error so one index cannot cancel the others.
	var g errgroup.Group
	for i, idx := range r.indices {
		g.Go(func() error {
			qctx, cancel := r.withTimeout(ctx)
			defer cancel()

			matches, err := idx.QueryEmbedding(qctx, vec, limit)
			if err != nil {
				failed[i] = true
				if ctx.Err() != nil {
					return nil
				}
				r.logger.Warn().Err(err).Str("index", string(idx.Type())).Msg("index query failed, continuing without it")
				r.metrics.RecordRetrievalDegraded(string(idx.Type()))
				return nil
			}
			perIndex[i] = matches
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		r.logger.Debug().Err(ctx.Err()).Msg("retrieval cancelled by caller")
		return merge(perIndex, k)
	}
	if n := countTrue(failed); n > 0 && n == len(r.indices) {
		r.logger.Error().Int("indices", n).Msg("all indices failed, answering without context")
	}

	return merge(perIndex, k)
}

// Search embeds text and retrieves context for it. Used by the CLI and MCP
// tools; the chat pipeline calls Embed and Retrieve separately.
func (r *Retriever) Search(ctx context.Context, text string, k int) (Result, error) {
	vec, err := r.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return r.Retrieve(ctx, vec, k), nil
}

func (r *Retriever) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// merge concatenates candidates in index order, converts distance to
// score, stable-sorts by descending score and keeps the first k.
func merge(perIndex [][]vectordb.Match, k int) Result {
	var out Result
	for _, matches := range perIndex {
		for _, m := range matches {
			out = append(out, ContextDocument{
				ID:         m.Document.ID,
				Type:       m.Document.Type,
				Title:      m.Document.Title,
				Content:    m.Document.Content,
				URL:        m.Document.URL,
				ChangeDate: m.Document.ChangeDate,
				Score:      1 - float64(m.Distance),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	if len(out) > k {
		out = out[:k]
	}
	if out == nil {
		out = Result{}
	}
	return out
}

func countTrue(bs []bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}
