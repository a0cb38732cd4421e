// Package gemini implements EmbeddingProvider using the Gemini embedContent API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spetr/aethersync/pkg/provider"
	"github.com/spetr/aethersync/pkg/types"
)

// Default values
const (
	DefaultModel      = "models/embedding-001"
	DefaultEndpoint   = "https://generativelanguage.googleapis.com/v1beta"
	DefaultDimensions = 768
	DefaultTimeout    = 30 * time.Second
	DefaultMaxChars   = 8000 // the API rejects inputs above ~2048 tokens
)

// Task types understood by embedContent.
const (
	taskDocument = "RETRIEVAL_DOCUMENT"
	taskQuery    = "RETRIEVAL_QUERY"
)

// Config contains Gemini provider configuration.
type Config struct {
	Model      string
	Endpoint   string
	APIKey     string // If empty, uses GEMINI_API_KEY env var
	Dimensions int
	Timeout    time.Duration
}

// Provider implements the EmbeddingProvider interface for Gemini.
type Provider struct {
	config Config
	client *http.Client
}

// New creates a new Gemini embedding provider.
func New(cfg Config) *Provider {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if !strings.HasPrefix(cfg.Model, "models/") {
		cfg.Model = "models/" + cfg.Model
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Provider{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "gemini"
}

type embedRequest struct {
	Model                string  `json:"model"`
	Content              content `json:"content"`
	TaskType             string  `json:"taskType,omitempty"`
	OutputDimensionality int     `json:"outputDimensionality,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Embed generates the embedding of a single text.
func (p *Provider) Embed(ctx context.Context, text string, role types.EmbeddingRole) ([]float32, error) {
	if p.config.APIKey == "" {
		return nil, p.fail(0, true, errors.New("GEMINI_API_KEY not set"))
	}

	// Truncate text if too long to avoid context length errors
	if len(text) > DefaultMaxChars {
		text = text[:DefaultMaxChars]
	}

	task := taskDocument
	if role == types.RoleQuery {
		task = taskQuery
	}

	reqBody := embedRequest{
		Model:    p.config.Model,
		Content:  content{Parts: []part{{Text: text}}},
		TaskType: task,
	}
	if p.config.Dimensions != DefaultDimensions {
		reqBody.OutputDimensionality = p.config.Dimensions
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, p.fail(0, false, err)
	}

	url := fmt.Sprintf("%s/%s:embedContent", p.config.Endpoint, p.config.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, p.fail(0, false, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		// Transport failures (DNS, reset, timeout) are worth another attempt later.
		return nil, &types.ProviderError{Provider: p.Name(), Class: types.Retryable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, p.statusError(resp.StatusCode, body)
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &types.ProviderError{Provider: p.Name(), Class: types.Retryable, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	if len(result.Embedding.Values) != p.config.Dimensions {
		return nil, p.fail(0, false, fmt.Errorf("got %d dimensions, want %d", len(result.Embedding.Values), p.config.Dimensions))
	}

	return result.Embedding.Values, nil
}

// statusError turns a non-200 response into a classified ProviderError.
func (p *Provider) statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var er errorResponse
	if json.Unmarshal(body, &er) == nil && er.Error.Message != "" {
		msg = er.Error.Status + ": " + er.Error.Message
	}

	credential := provider.IsCredentialStatus(status)
	// An invalid key comes back as 400 INVALID_ARGUMENT with an API_KEY_INVALID reason.
	if status == http.StatusBadRequest && strings.Contains(strings.ToLower(msg), "api key") {
		credential = true
	}

	return &types.ProviderError{
		Provider:   p.Name(),
		Class:      provider.ClassifyStatus(status),
		StatusCode: status,
		Credential: credential,
		Err:        errors.New(msg),
	}
}

func (p *Provider) fail(status int, credential bool, err error) error {
	return &types.ProviderError{
		Provider:   p.Name(),
		Class:      types.Fatal,
		StatusCode: status,
		Credential: credential,
		Err:        err,
	}
}

// Dimensions returns the embedding dimensions.
func (p *Provider) Dimensions() int {
	return p.config.Dimensions
}

// Warmup sends a test embedding request to verify the key.
func (p *Provider) Warmup(ctx context.Context) error {
	_, err := p.Embed(ctx, "warmup", types.RoleQuery)
	return err
}

// Close releases resources.
func (p *Provider) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}

// Ensure Provider implements EmbeddingProvider interface
var _ provider.EmbeddingProvider = (*Provider)(nil)
