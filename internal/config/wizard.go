package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// DefaultPath is the config file written by the wizard and read by default.
const DefaultPath = ".sejmofil.yml"

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to .sejmofil.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to sejmofil! Let's configure the chat service.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Provider selection.
	providerPrompt := promptui.Select{
		Label: "Select LLM provider",
		Items: []string{"openai", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	provider := ProviderType(providerStr)
	preset := GetPreset(provider)

	cfg.LLM.Provider = provider
	cfg.LLM.Model = preset.Model
	cfg.Embedding.Provider = provider
	cfg.Embedding.Model = preset.EmbeddingModel
	cfg.Embedding.Dimensions = preset.Dimensions

	// 2. Index backend.
	backendPrompt := promptui.Select{
		Label: "Select document index backend",
		Items: []string{"chromem", "weaviate"},
	}
	_, backendStr, err := backendPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("backend selection: %w", err)
	}
	cfg.Index.Backend = IndexBackend(backendStr)

	if cfg.Index.Backend == BackendWeaviate {
		urlPrompt := promptui.Prompt{
			Label:   "Weaviate URL",
			Default: "http://localhost:8081",
		}
		weaviateURL, err := urlPrompt.Run()
		if err != nil {
			return nil, fmt.Errorf("weaviate url: %w", err)
		}
		cfg.Index.WeaviateURL = strings.TrimSpace(weaviateURL)
	}

	// 3. Number of context documents.
	topKPrompt := promptui.Prompt{
		Label:   "Context documents per answer",
		Default: strconv.Itoa(cfg.Retrieval.TopK),
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return fmt.Errorf("must be a positive integer")
			}
			return nil
		},
	}
	topKStr, err := topKPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("top k: %w", err)
	}
	cfg.Retrieval.TopK, _ = strconv.Atoi(topKStr)

	// 4. Allowed origins.
	originsPrompt := promptui.Prompt{
		Label:   "Allowed CORS origins (comma-separated, blank for none)",
		Default: "https://sejmofil.pl",
	}
	originsStr, err := originsPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("allowed origins: %w", err)
	}
	cfg.Server.AllowedOrigins = splitAndTrim(originsStr)

	// Check for API key.
	if envVar := APIKeyEnvVar(provider); envVar != "" && os.Getenv(envVar) == "" {
		fmt.Printf("\nNote: Set %s in your environment before running sejmofil server.\n", envVar)
	}

	if err := cfg.Save(DefaultPath); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", DefaultPath)
	return cfg, nil
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if token := strings.TrimSpace(part); token != "" {
			result = append(result, token)
		}
	}
	return result
}
