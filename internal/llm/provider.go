package llm

import "context"

// Provider defines the interface for LLM providers.
type Provider interface {
	// Stream opens a streaming completion. Cancelling ctx aborts the
	// underlying request.
	Stream(ctx context.Context, req Request) (Stream, error)
	// Name returns the name of this provider.
	Name() string
}

// Stream is a finite, pull-based sequence of text deltas. It is not
// restartable.
type Stream interface {
	// Recv returns the next non-empty delta, or io.EOF once the provider
	// has finished normally.
	Recv() (string, error)
	// Close releases the provider connection. It is safe to call more
	// than once and from another goroutine.
	Close() error
}
