package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmbeddingProvider marks any failure to turn text into a vector.
var ErrEmbeddingProvider = errors.New("embedding provider error")

// ErrEmptyInput is returned for blank query text. It also matches
// ErrEmbeddingProvider.
var ErrEmptyInput = fmt.Errorf("%w: empty input", ErrEmbeddingProvider)

// Embedder defines the interface for generating text embeddings.
type Embedder interface {
	// Embed generates embeddings for one or more texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the number of dimensions in the embedding vectors.
	Dimensions() int

	// Name returns the name/identifier of the embedding model.
	Name() string
}

// EmbedQuery embeds a single user query. The text is trimmed first and
// blank input is rejected without calling the provider. Every failure
// wraps ErrEmbeddingProvider. There are no retries.
func EmbedQuery(ctx context.Context, e Embedder, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEmbeddingProvider, e.Name(), err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("%w: %s returned an empty vector", ErrEmbeddingProvider, e.Name())
	}
	return vecs[0], nil
}
