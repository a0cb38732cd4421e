// Package provider defines interfaces for pluggable components.
package provider

import (
	"context"
	"time"

	"github.com/spetr/aethersync/pkg/types"
)

// EmbeddingProvider generates vector embeddings from text.
type EmbeddingProvider interface {
	// Name returns the provider name (e.g., "gemini", "openai").
	Name() string

	// Embed generates the embedding of a single text.
	// Errors should be *types.ProviderError so callers can classify them.
	Embed(ctx context.Context, text string, role types.EmbeddingRole) ([]float32, error)

	// Dimensions returns the embedding dimension size.
	Dimensions() int

	// Warmup verifies credentials and connectivity.
	Warmup(ctx context.Context) error

	// Close releases any resources.
	Close() error
}

// EmbeddingConfig contains configuration for embedding providers.
type EmbeddingConfig struct {
	Provider   string        // "gemini", "openai", "plugin"
	Model      string        // Model name, or plugin binary name
	Endpoint   string        // API base URL override
	APIKey     string        // API key
	Dimensions int           // Expected vector size
	Timeout    time.Duration // Per-request timeout
	PluginDir  string        // Directory of plugin binaries
}

// ClassifyStatus maps an HTTP status from an embedding API to a failure class.
// Rate limiting and server-side errors may succeed later; everything else
// (bad request, bad credential, unknown model) will fail the same way again.
func ClassifyStatus(status int) types.ProviderClass {
	switch {
	case status == 408 || status == 429:
		return types.Retryable
	case status >= 500:
		return types.Retryable
	default:
		return types.Fatal
	}
}

// IsCredentialStatus reports whether status signals a rejected credential.
func IsCredentialStatus(status int) bool {
	return status == 401 || status == 403
}
