package llm

import (
	"fmt"
	"os"

	"github.com/miskibin/sejmofil-sub001/internal/config"
)

// NewProvider creates the LLM provider selected by cfg, rate limited when
// cfg.RequestsPerMinute is set. Supported provider types: "openai", "ollama".
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	var p Provider
	switch cfg.Provider {
	case config.ProviderOpenAI:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		p = NewOpenAIProvider(apiKey, cfg.Model, cfg.BaseURL)

	case config.ProviderOllama:
		p = NewOllamaProvider(config.OllamaBaseURL(cfg.BaseURL), cfg.Model)

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Provider)
	}
	return NewRateLimitedProvider(p, cfg.RequestsPerMinute), nil
}
