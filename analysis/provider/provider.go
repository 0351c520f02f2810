// Package provider holds the concrete embedding and completion adapters
// behind the analysis package's provider contracts, plus the factory that
// selects one by configuration at startup.
package provider

import (
	"fmt"

	"github.com/theimaginaryfoundation/chat-topics/analysis"
)

// Config selects and configures the external providers.
type Config struct {
	// Name picks the provider family; "openai" is the only one wired today.
	Name string `yaml:"name"`

	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`

	// Model is the completion model id.
	Model string `yaml:"model"`

	// EmbeddingModel is the embedding model id.
	EmbeddingModel string `yaml:"embedding_model"`

	// EmbeddingDimension is the vector size the embedding model produces.
	EmbeddingDimension int `yaml:"embedding_dimension"`

	// MaxOutputTokens caps completion responses; zero uses the default.
	MaxOutputTokens int `yaml:"max_output_tokens"`
}

// NewCompletion builds the configured completion provider.
func NewCompletion(cfg Config) (analysis.CompletionProvider, error) {
	switch cfg.Name {
	case "", "openai":
		return newOpenAICompletion(cfg), nil
	default:
		return nil, fmt.Errorf("NewCompletion: unknown provider %q", cfg.Name)
	}
}

// NewEmbedding builds the configured embedding provider.
func NewEmbedding(cfg Config) (analysis.EmbeddingProvider, error) {
	switch cfg.Name {
	case "", "openai":
		return newOpenAIEmbedding(cfg), nil
	default:
		return nil, fmt.Errorf("NewEmbedding: unknown provider %q", cfg.Name)
	}
}
