package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"

	"github.com/miskibin/sejmofil-sub001/internal/chat"
	"github.com/miskibin/sejmofil-sub001/internal/config"
	"github.com/miskibin/sejmofil-sub001/internal/embeddings"
	"github.com/miskibin/sejmofil-sub001/internal/llm"
	"github.com/miskibin/sejmofil-sub001/internal/logging"
	"github.com/miskibin/sejmofil-sub001/internal/observability"
	"github.com/miskibin/sejmofil-sub001/internal/prompt"
	"github.com/miskibin/sejmofil-sub001/internal/retrieval"
	"github.com/miskibin/sejmofil-sub001/internal/vectordb"
)

// promptLocation is the zone the prompt's current date is rendered in.
const promptLocation = "Europe/Warsaw"

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `sejmofil init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// newLogger builds the root logger. Logs always go to stderr so stdout
// stays free for command output and the MCP protocol.
func newLogger(cfg *config.Config) zerolog.Logger {
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	return logging.New(level, cfg.Log.JSON, os.Stderr)
}

// openStore connects to the configured index backend. A chromem store is
// loaded from its data directory when a previous index run persisted one.
func openStore(ctx context.Context, cfg *config.Config, embedder embeddings.Embedder, logger zerolog.Logger) (vectordb.Store, error) {
	switch cfg.Index.Backend {
	case config.BackendWeaviate:
		store, err := vectordb.NewWeaviateStore(cfg.Index.WeaviateURL, cfg.Index.ClassPrefix, embedder)
		if err != nil {
			return nil, fmt.Errorf("creating vector store: %w", err)
		}
		return store, nil
	case config.BackendChromem:
		store, err := vectordb.NewChromemStore(embedder)
		if err != nil {
			return nil, fmt.Errorf("creating vector store: %w", err)
		}
		if _, err := os.Stat(filepath.Join(cfg.Index.DataDir, vectordb.ChromemExportFile)); errors.Is(err, os.ErrNotExist) {
			logger.Warn().Str("dir", cfg.Index.DataDir).Msg("no persisted index found, run `sejmofil index` first")
			return store, nil
		}
		if err := store.Load(ctx, cfg.Index.DataDir); err != nil {
			return nil, fmt.Errorf("loading vector store from %s: %w", cfg.Index.DataDir, err)
		}
		logger.Info().Int("documents", store.Count()).Msg("index loaded")
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported index backend: %s", cfg.Index.Backend)
	}
}

// newRetriever builds a retriever over indices with the configured limits.
func newRetriever(cfg *config.Config, embedder embeddings.Embedder, indices []vectordb.Index, logger zerolog.Logger, metrics *observability.Metrics) *retrieval.Retriever {
	return retrieval.New(embedder, indices,
		retrieval.WithTimeout(cfg.Retrieval.Timeout),
		retrieval.WithPerIndexLimit(cfg.Retrieval.PerIndexLimit),
		retrieval.WithLogger(logger),
		retrieval.WithMetrics(metrics),
	)
}

// typedSearchers returns one single-index retriever per document type.
func typedSearchers(cfg *config.Config, embedder embeddings.Embedder, indices []vectordb.Index, logger zerolog.Logger) map[vectordb.DocumentType]*retrieval.Retriever {
	out := make(map[vectordb.DocumentType]*retrieval.Retriever, len(indices))
	for _, idx := range indices {
		out[idx.Type()] = newRetriever(cfg, embedder, []vectordb.Index{idx}, logger, nil)
	}
	return out
}

// newAssembler builds the prompt assembler, rendering dates in Warsaw time.
func newAssembler(cfg *config.Config, logger zerolog.Logger) *prompt.Assembler {
	loc, err := time.LoadLocation(promptLocation)
	if err != nil {
		logger.Warn().Err(err).Msg("falling back to UTC for prompt dates")
		loc = time.UTC
	}
	return prompt.New(cfg.Retrieval.ExcerptChars, loc)
}

// pipelineConfig maps the loaded config onto per-turn generation settings.
func pipelineConfig(cfg *config.Config) chat.Config {
	return chat.Config{
		TopK:             cfg.Retrieval.TopK,
		Model:            cfg.LLM.Model,
		MaxTokens:        cfg.LLM.MaxTokens,
		Temperature:      cfg.LLM.Temperature,
		RequireGrounding: cfg.Retrieval.RequireGrounding,
	}
}

// components holds what every chat-serving command builds from config.
type components struct {
	embedder  embeddings.Embedder
	store     vectordb.Store
	retriever *retrieval.Retriever
	provider  llm.Provider
}

// buildComponents wires the embedder, index store, retriever and provider.
// The provider is skipped when withProvider is false.
func buildComponents(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metrics *observability.Metrics, withProvider bool) (*components, error) {
	embedder, err := embeddings.NewFromConfig(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	store, err := openStore(ctx, cfg, embedder, logger)
	if err != nil {
		return nil, err
	}
	c := &components{
		embedder:  embedder,
		store:     store,
		retriever: newRetriever(cfg, embedder, store.Indices(), logger, metrics),
	}
	if withProvider {
		c.provider, err = llm.NewProvider(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("creating LLM provider: %w", err)
		}
	}
	return c, nil
}
