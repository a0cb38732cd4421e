package host

import (
	"context"
	"errors"

	"github.com/spetr/aethersync/pkg/plugin/shared"
	"github.com/spetr/aethersync/pkg/provider"
	"github.com/spetr/aethersync/pkg/types"
)

// EmbeddingAdapter adapts a plugin EmbeddingProvider to the provider.EmbeddingProvider interface.
type EmbeddingAdapter struct {
	name   string
	plugin shared.EmbeddingProvider
}

// NewEmbeddingAdapter creates a new embedding adapter.
func NewEmbeddingAdapter(name string, p shared.EmbeddingProvider) *EmbeddingAdapter {
	return &EmbeddingAdapter{name: name, plugin: p}
}

// Name returns the provider name.
func (a *EmbeddingAdapter) Name() string {
	if n := a.plugin.Name(); n != "" {
		return n
	}
	return a.name
}

// Embed generates the embedding of one text.
func (a *EmbeddingAdapter) Embed(ctx context.Context, text string, role types.EmbeddingRole) ([]float32, error) {
	// Check context before calling plugin
	if ctx.Err() != nil {
		return nil, &types.ProviderError{Provider: a.name, Class: types.Fatal, Err: ctx.Err()}
	}
	vec, err := a.plugin.Embed(text, string(role))
	if err != nil {
		return nil, classifyPluginError(a.name, err)
	}
	return vec, nil
}

// classifyPluginError turns a plugin or RPC failure into a ProviderError.
// A broken RPC connection means the plugin process died; that will not heal.
func classifyPluginError(name string, err error) error {
	class := types.Fatal
	var pe *shared.PluginError
	if errors.As(err, &pe) && pe.Retryable {
		class = types.Retryable
	}
	return &types.ProviderError{Provider: name, Class: class, Err: err}
}

// Dimensions returns the embedding dimensions.
func (a *EmbeddingAdapter) Dimensions() int {
	return a.plugin.Dimensions()
}

// Warmup warms up the provider.
func (a *EmbeddingAdapter) Warmup(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return a.plugin.Warmup()
}

// Close closes the provider.
func (a *EmbeddingAdapter) Close() error {
	return a.plugin.Close()
}

// Ensure EmbeddingAdapter implements provider.EmbeddingProvider
var _ provider.EmbeddingProvider = (*EmbeddingAdapter)(nil)
