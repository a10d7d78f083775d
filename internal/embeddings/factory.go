package embeddings

import (
	"fmt"
	"os"

	"github.com/miskibin/sejmofil-sub001/internal/config"
)

// NewFromConfig builds the embedder selected by the embedding config.
func NewFromConfig(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for openai embeddings")
		}
		return NewOpenAIEmbedder(apiKey, OpenAIModel(cfg.Model), cfg.Dimensions, cfg.BaseURL), nil
	case config.ProviderOllama:
		return NewOllamaEmbedder(cfg.Model, cfg.Dimensions, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
