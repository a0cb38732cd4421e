// Package openai implements EmbeddingProvider using OpenAI's API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/sashabaranov/go-openai"

	"github.com/spetr/aethersync/pkg/provider"
	"github.com/spetr/aethersync/pkg/types"
)

// Default values
const (
	DefaultModel      = openai.SmallEmbedding3
	DefaultDimensions = 768 // text-embedding-3 models can shorten their output
)

// Models that accept the dimensions request parameter.
var shortenable = map[string]bool{
	"text-embedding-3-small": true,
	"text-embedding-3-large": true,
}

// Config contains OpenAI provider configuration.
type Config struct {
	Model      string
	APIKey     string // If empty, uses OPENAI_API_KEY env var
	BaseURL    string // Optional: custom API endpoint (for Azure, etc.)
	Dimensions int
}

// Provider implements the EmbeddingProvider interface for OpenAI.
type Provider struct {
	config Config
	client *openai.Client
}

// New creates a new OpenAI embedding provider.
func New(cfg Config) *Provider {
	if cfg.Model == "" {
		cfg.Model = string(DefaultModel)
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}

	// Get API key from config or environment
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Provider{
		config: cfg,
		client: openai.NewClientWithConfig(clientConfig),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "openai"
}

// Embed generates the embedding of a single text. OpenAI models are
// symmetric, so role does not change the request.
func (p *Provider) Embed(ctx context.Context, text string, role types.EmbeddingRole) ([]float32, error) {
	if p.config.APIKey == "" {
		return nil, &types.ProviderError{Provider: p.Name(), Class: types.Fatal, Credential: true, Err: errors.New("OPENAI_API_KEY not set")}
	}

	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.config.Model),
	}
	if shortenable[p.config.Model] {
		req.Dimensions = p.config.Dimensions
	}

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, p.classify(err)
	}
	if len(resp.Data) == 0 {
		return nil, &types.ProviderError{Provider: p.Name(), Class: types.Retryable, Err: errors.New("empty embedding response")}
	}

	vec := resp.Data[0].Embedding
	if len(vec) != p.config.Dimensions {
		return nil, &types.ProviderError{
			Provider: p.Name(),
			Class:    types.Fatal,
			Err:      fmt.Errorf("got %d dimensions, want %d", len(vec), p.config.Dimensions),
		}
	}
	return vec, nil
}

// classify maps a go-openai error to a ProviderError.
func (p *Provider) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &types.ProviderError{
			Provider:   p.Name(),
			Class:      provider.ClassifyStatus(apiErr.HTTPStatusCode),
			StatusCode: apiErr.HTTPStatusCode,
			Credential: provider.IsCredentialStatus(apiErr.HTTPStatusCode),
			Err:        err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &types.ProviderError{
			Provider:   p.Name(),
			Class:      provider.ClassifyStatus(reqErr.HTTPStatusCode),
			StatusCode: reqErr.HTTPStatusCode,
			Credential: reqErr.HTTPStatusCode == http.StatusUnauthorized,
			Err:        err,
		}
	}
	// No HTTP response: network trouble or a cancelled context.
	class := types.Retryable
	if errors.Is(err, context.Canceled) {
		class = types.Fatal
	}
	return &types.ProviderError{Provider: p.Name(), Class: class, Err: err}
}

// Dimensions returns the embedding dimensions.
func (p *Provider) Dimensions() int {
	return p.config.Dimensions
}

// Warmup tests the API connection.
func (p *Provider) Warmup(ctx context.Context) error {
	_, err := p.Embed(ctx, "test", types.RoleQuery)
	return err
}

// Close releases resources.
func (p *Provider) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}

// Ensure Provider implements EmbeddingProvider interface
var _ provider.EmbeddingProvider = (*Provider)(nil)
