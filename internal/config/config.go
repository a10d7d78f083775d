package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variable overrides. A double
// underscore separates nested keys: SEJMOFIL_RETRIEVAL__TOP_K -> retrieval.top_k.
const EnvPrefix = "SEJMOFIL_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (SEJMOFIL_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// validProviders is the set of recognized provider values.
var validProviders = map[ProviderType]bool{
	ProviderOpenAI: true,
	ProviderOllama: true,
}

// validBackends is the set of recognized index backends.
var validBackends = map[IndexBackend]bool{
	BackendChromem:  true,
	BackendWeaviate: true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	if !validProviders[c.LLM.Provider] {
		return fmt.Errorf("invalid llm.provider %q: must be one of openai, ollama", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LLM.MaxTokens < 0 {
		return fmt.Errorf("llm.max_tokens must be non-negative")
	}
	if c.LLM.RequestsPerMinute < 0 {
		return fmt.Errorf("llm.requests_per_minute must be non-negative")
	}

	if !validProviders[c.Embedding.Provider] {
		return fmt.Errorf("invalid embedding.provider %q: must be one of openai, ollama", c.Embedding.Provider)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}

	if !validBackends[c.Index.Backend] {
		return fmt.Errorf("invalid index.backend %q: must be one of chromem, weaviate", c.Index.Backend)
	}
	if c.Index.Backend == BackendWeaviate && c.Index.WeaviateURL == "" {
		return fmt.Errorf("index.weaviate_url is required for the weaviate backend")
	}

	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive")
	}
	if c.Retrieval.PerIndexLimit < 0 {
		return fmt.Errorf("retrieval.per_index_limit must be non-negative")
	}
	if c.Retrieval.Timeout < 0 {
		return fmt.Errorf("retrieval.timeout must be non-negative")
	}
	if c.Retrieval.ExcerptChars < 0 {
		return fmt.Errorf("retrieval.excerpt_chars must be non-negative")
	}

	if c.Recorder.QueueSize < 0 {
		return fmt.Errorf("recorder.queue_size must be non-negative")
	}
	if c.Recorder.WriteTimeout < 0 {
		return fmt.Errorf("recorder.write_timeout must be non-negative")
	}

	return nil
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaBaseURL resolves the Ollama host: the configured value, then
// OLLAMA_HOST, then the local default.
func OllamaBaseURL(configured string) string {
	if configured != "" {
		return configured
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		return host
	}
	return defaultOllamaBaseURL
}
