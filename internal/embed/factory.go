package embed

import (
	"os"

	"github.com/codescope/codescope/internal/config"
	"github.com/codescope/codescope/internal/errors"
)

// NewFromConfig builds the configured provider wrapped in the LRU cache.
func NewFromConfig(cfg config.EmbeddingsConfig) (Embedder, error) {
	inner, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	return NewCachedEmbedder(inner, DefaultCacheSize), nil
}

func newProvider(cfg config.EmbeddingsConfig) (Embedder, error) {
	switch cfg.Provider {
	case "", config.ProviderOllama:
		return NewOllamaEmbedder(OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
		}), nil
	case config.ProviderOpenAI:
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     os.Getenv("OPENAI_API_KEY"),
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
		})
	case config.ProviderVoyage:
		return NewVoyageEmbedder(VoyageConfig{
			APIKey:     os.Getenv("VOYAGE_API_KEY"),
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
		})
	default:
		return nil, errors.Validation("embed.factory", "unknown embedding provider: "+cfg.Provider)
	}
}
