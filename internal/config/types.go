package config

import "time"

// ProviderType identifies an LLM or embedding provider.
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderOllama ProviderType = "ollama"
)

// IndexBackend identifies where the document indices live.
type IndexBackend string

const (
	BackendChromem  IndexBackend = "chromem"
	BackendWeaviate IndexBackend = "weaviate"
)

// Config is the top-level sejmofil configuration, corresponding to .sejmofil.yml.
type Config struct {
	Server    ServerConfig    `yaml:"server" koanf:"server"`
	LLM       LLMConfig       `yaml:"llm" koanf:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding" koanf:"embedding"`
	Index     IndexConfig     `yaml:"index" koanf:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval" koanf:"retrieval"`
	Database  DatabaseConfig  `yaml:"database" koanf:"database"`
	Log       LogConfig       `yaml:"log" koanf:"log"`
	Recorder  RecorderConfig  `yaml:"recorder" koanf:"recorder"`
	Ingest    IngestConfig    `yaml:"ingest" koanf:"ingest"`
}

// ServerConfig holds HTTP listener and CORS settings.
type ServerConfig struct {
	Port           int      `yaml:"port" koanf:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" koanf:"allowed_origins"`
	AllowAll       bool     `yaml:"allow_all" koanf:"allow_all"`
}

// LLMConfig selects the chat completion provider.
type LLMConfig struct {
	Provider          ProviderType `yaml:"provider" koanf:"provider"`
	Model             string       `yaml:"model" koanf:"model"`
	BaseURL           string       `yaml:"base_url" koanf:"base_url"`
	Temperature       float32      `yaml:"temperature" koanf:"temperature"`
	MaxTokens         int          `yaml:"max_tokens" koanf:"max_tokens"`
	RequestsPerMinute int          `yaml:"requests_per_minute" koanf:"requests_per_minute"`
}

// EmbeddingConfig selects the embedding provider. Its model must match the
// one the indices were built with.
type EmbeddingConfig struct {
	Provider   ProviderType `yaml:"provider" koanf:"provider"`
	Model      string       `yaml:"model" koanf:"model"`
	Dimensions int          `yaml:"dimensions" koanf:"dimensions"`
	BaseURL    string       `yaml:"base_url" koanf:"base_url"`
}

// IndexConfig locates the per-type document indices.
type IndexConfig struct {
	Backend     IndexBackend `yaml:"backend" koanf:"backend"`
	DataDir     string       `yaml:"data_dir" koanf:"data_dir"`
	WeaviateURL string       `yaml:"weaviate_url" koanf:"weaviate_url"`
	ClassPrefix string       `yaml:"class_prefix" koanf:"class_prefix"`
}

// RetrievalConfig tunes context retrieval and prompt assembly.
type RetrievalConfig struct {
	TopK             int           `yaml:"top_k" koanf:"top_k"`
	PerIndexLimit    int           `yaml:"per_index_limit" koanf:"per_index_limit"`
	Timeout          time.Duration `yaml:"timeout" koanf:"timeout"`
	RequireGrounding bool          `yaml:"require_grounding" koanf:"require_grounding"`
	ExcerptChars     int           `yaml:"excerpt_chars" koanf:"excerpt_chars"`
}

// DatabaseConfig locates the SQLite conversation store.
type DatabaseConfig struct {
	Path string `yaml:"path" koanf:"path"`
}

// LogConfig controls the root logger.
type LogConfig struct {
	Level string `yaml:"level" koanf:"level"`
	JSON  bool   `yaml:"json" koanf:"json"`
}

// RecorderConfig tunes the background turn recorder.
type RecorderConfig struct {
	QueueSize    int           `yaml:"queue_size" koanf:"queue_size"`
	WriteTimeout time.Duration `yaml:"write_timeout" koanf:"write_timeout"`
}

// IngestConfig lists the source files the index command loads.
type IngestConfig struct {
	SourceDir string   `yaml:"source_dir" koanf:"source_dir"`
	Include   []string `yaml:"include" koanf:"include"`
	Exclude   []string `yaml:"exclude" koanf:"exclude"`
}
