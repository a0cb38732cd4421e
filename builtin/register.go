// Package builtin registers all built-in providers with the default registry.
package builtin

import (
	geminiEmbed "github.com/spetr/aethersync/builtin/embedding/gemini"
	openaiEmbed "github.com/spetr/aethersync/builtin/embedding/openai"
	"github.com/spetr/aethersync/pkg/plugin/host"
	"github.com/spetr/aethersync/pkg/provider"
)

func init() {
	provider.RegisterEmbedding("gemini", func(cfg provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		return geminiEmbed.New(geminiEmbed.Config{
			Endpoint:   cfg.Endpoint,
			Model:      cfg.Model,
			APIKey:     cfg.APIKey,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		}), nil
	})

	provider.RegisterEmbedding("openai", func(cfg provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		return openaiEmbed.New(openaiEmbed.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.Endpoint,
			Dimensions: cfg.Dimensions,
		}), nil
	})

	// External embedding plugins; the model names the binary
	provider.RegisterEmbedding("plugin", host.NewEmbeddingFactory("plugins"))
}
