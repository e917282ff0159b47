package evidence

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ProviderKind selects which backing API the factory builds.
type ProviderKind string

const (
	ProviderKindOpenAI    ProviderKind = "openai"
	ProviderKindAnthropic ProviderKind = "anthropic"
)

// FactoryConfig holds the provider settings the factory needs.
type FactoryConfig struct {
	Kind           ProviderKind
	Endpoint       string // OpenAI-compatible base URL (chat + embeddings)
	Model          string
	EmbeddingModel string
	APIKey         string
	Timeout        time.Duration
}

// NewProvider builds the configured evidence provider. An Anthropic provider
// borrows the embedding channel from an OpenAI-compatible endpoint when one is
// configured alongside it.
func NewProvider(cfg FactoryConfig, logger *zap.Logger) (Provider, error) {
	switch cfg.Kind {
	case ProviderKindOpenAI, "":
		return NewOpenAIProvider(OpenAIConfig{
			Endpoint:       cfg.Endpoint,
			Model:          cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
			APIKey:         cfg.APIKey,
			Timeout:        cfg.Timeout,
		}, logger)

	case ProviderKindAnthropic:
		var embedder Embedder
		if cfg.Endpoint != "" {
			embeddingClient, err := NewOpenAIProvider(OpenAIConfig{
				Endpoint:       cfg.Endpoint,
				Model:          cfg.Model,
				EmbeddingModel: cfg.EmbeddingModel,
				Timeout:        cfg.Timeout,
			}, logger)
			if err != nil {
				return nil, fmt.Errorf("create embedding client: %w", err)
			}
			embedder = embeddingClient
		}
		return NewAnthropicProvider(AnthropicConfig{
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		}, embedder, logger)

	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
}
