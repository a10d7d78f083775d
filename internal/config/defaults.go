package config

import "time"

// ModelPreset describes the default models for a provider.
type ModelPreset struct {
	Model          string
	EmbeddingModel string
	Dimensions     int
}

// modelPresets maps each provider to its model choices.
var modelPresets = map[ProviderType]ModelPreset{
	ProviderOpenAI: {Model: "gpt-4o-mini", EmbeddingModel: "text-embedding-3-small", Dimensions: 1536},
	ProviderOllama: {Model: "llama3.1", EmbeddingModel: "nomic-embed-text", Dimensions: 768},
}

// GetPreset returns the model preset for the given provider, falling back to
// the OpenAI preset for unknown providers.
func GetPreset(provider ProviderType) ModelPreset {
	if p, ok := modelPresets[provider]; ok {
		return p
	}
	return modelPresets[ProviderOpenAI]
}

// DefaultIncludes are the ingest globs used when none are configured.
var DefaultIncludes = []string{
	"**/*.json",
	"**/*.yaml",
	"**/*.yml",
	"**/*.md",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	preset := GetPreset(ProviderOpenAI)
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			Model:       preset.Model,
			Temperature: 0.3,
			MaxTokens:   1024,
		},
		Embedding: EmbeddingConfig{
			Provider:   ProviderOpenAI,
			Model:      preset.EmbeddingModel,
			Dimensions: preset.Dimensions,
		},
		Index: IndexConfig{
			Backend:     BackendChromem,
			DataDir:     ".sejmofil/vectordb",
			ClassPrefix: "Sejmofil",
		},
		Retrieval: RetrievalConfig{
			TopK:          5,
			PerIndexLimit: 5,
			Timeout:       5 * time.Second,
			ExcerptChars:  1500,
		},
		Database: DatabaseConfig{
			Path: ".sejmofil/sejmofil.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Recorder: RecorderConfig{
			QueueSize:    256,
			WriteTimeout: 5 * time.Second,
		},
		Ingest: IngestConfig{
			SourceDir: "data",
			Include:   DefaultIncludes,
		},
	}
}
