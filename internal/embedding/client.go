// Package embedding wraps an EmbeddingProvider with the pacing and
// validation every caller relies on.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spetr/aethersync/internal/vector"
	"github.com/spetr/aethersync/pkg/provider"
	"github.com/spetr/aethersync/pkg/types"
)

// Default pacing.
const (
	DefaultRateLimitDelay  = 1100 * time.Millisecond
	DefaultFailureCooldown = 2 * time.Second
)

// Options configures a Client.
type Options struct {
	Dimensions      int
	RateLimitDelay  time.Duration // minimum gap between consecutive calls
	FailureCooldown time.Duration // gap after a failed call

	// Clock and Sleep are replaced in tests.
	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client is a paced, validating embedding client. It is safe for
// concurrent use; calls are serialised.
type Client struct {
	provider provider.EmbeddingProvider
	opts     Options

	mu         sync.Mutex
	lastCall   time.Time
	lastFailed bool
	calls      int
	failures   int
}

// New creates a Client around p.
func New(p provider.EmbeddingProvider, opts Options) *Client {
	if opts.Dimensions == 0 {
		opts.Dimensions = p.Dimensions()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Client{provider: p, opts: opts}
}

// Provider returns the wrapped provider name.
func (c *Client) Provider() string {
	return c.provider.Name()
}

// Dimensions returns the vector size every result is checked against.
func (c *Client) Dimensions() int {
	return c.opts.Dimensions
}

// Embed returns the embedding of text for role. It waits out the rate
// limit delay (or the failure cooldown after a failed call) before calling
// the provider. Errors are *types.ProviderError.
func (c *Client) Embed(ctx context.Context, text string, role types.EmbeddingRole) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &types.ProviderError{Provider: c.provider.Name(), Class: types.Fatal, Err: errors.New("empty text")}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.pace(ctx); err != nil {
		return nil, &types.ProviderError{Provider: c.provider.Name(), Class: types.Fatal, Err: err}
	}

	vec, err := c.provider.Embed(ctx, text, role)
	c.lastCall = c.opts.Clock()
	c.calls++
	if err == nil {
		if verr := vector.Validate(vec, c.opts.Dimensions); verr != nil {
			err = &types.ProviderError{Provider: c.provider.Name(), Class: types.Fatal, Err: verr}
		}
	}
	if err != nil {
		c.lastFailed = true
		c.failures++
		var pe *types.ProviderError
		if !errors.As(err, &pe) {
			// Unclassified errors come from custom providers; retrying is harmless.
			err = &types.ProviderError{Provider: c.provider.Name(), Class: types.Retryable, Err: err}
		}
		slog.Debug("embedding failed", "provider", c.provider.Name(), "role", role, "error", err)
		return nil, err
	}

	c.lastFailed = false
	return vec, nil
}

// pace sleeps until the next call is allowed.
func (c *Client) pace(ctx context.Context) error {
	if c.lastCall.IsZero() {
		return ctx.Err()
	}
	gap := c.opts.RateLimitDelay
	if c.lastFailed && c.opts.FailureCooldown > gap {
		gap = c.opts.FailureCooldown
	}
	wait := gap - c.opts.Clock().Sub(c.lastCall)
	if wait <= 0 {
		return ctx.Err()
	}
	return c.opts.Sleep(ctx, wait)
}

// Stats returns how many provider calls were made and how many failed.
func (c *Client) Stats() (calls, failures int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls, c.failures
}

// Close closes the wrapped provider.
func (c *Client) Close() error {
	return c.provider.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Open creates the configured provider through the registry and wraps it.
func Open(reg *provider.Registry, cfg provider.EmbeddingConfig, opts Options) (*Client, error) {
	p, err := reg.CreateEmbedding(cfg.Provider, cfg)
	if err != nil {
		return nil, fmt.Errorf("create embedding provider: %w", err)
	}
	if opts.Dimensions == 0 {
		opts.Dimensions = cfg.Dimensions
	}
	return New(p, opts), nil
}
