package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spetr/aethersync/pkg/types"
)

type scriptedProvider struct {
	dims   int
	errs   []error // consumed per call; nil entries succeed
	calls  int
	roles  []types.EmbeddingRole
	vector []float32
}

func (p *scriptedProvider) Name() string { return "scripted" }
func (p *scriptedProvider) Embed(ctx context.Context, text string, role types.EmbeddingRole) ([]float32, error) {
	i := p.calls
	p.calls++
	p.roles = append(p.roles, role)
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if p.vector != nil {
		return p.vector, nil
	}
	v := make([]float32, p.dims)
	for j := range v {
		v[j] = 0.1
	}
	return v, nil
}
func (p *scriptedProvider) Dimensions() int                  { return p.dims }
func (p *scriptedProvider) Warmup(ctx context.Context) error { return nil }
func (p *scriptedProvider) Close() error                     { return nil }

// fakeClock advances only when the client sleeps.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (f *fakeClock) Now() time.Time { return f.now }
func (f *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	f.sleeps = append(f.sleeps, d)
	f.now = f.now.Add(d)
	return nil
}

func newTestClient(p *scriptedProvider, clk *fakeClock) *Client {
	return New(p, Options{
		Dimensions:      p.dims,
		RateLimitDelay:  DefaultRateLimitDelay,
		FailureCooldown: DefaultFailureCooldown,
		Clock:           clk.Now,
		Sleep:           clk.Sleep,
	})
}

func TestEmbedPacesCalls(t *testing.T) {
	p := &scriptedProvider{dims: 4}
	clk := &fakeClock{now: time.Unix(1000, 0)}
	c := newTestClient(p, clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.Embed(ctx, "text", types.RoleDocument); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	if len(clk.sleeps) != 2 {
		t.Fatalf("sleeps = %v, want 2 (none before the first call)", clk.sleeps)
	}
	for _, d := range clk.sleeps {
		if d != DefaultRateLimitDelay {
			t.Errorf("sleep = %v, want %v", d, DefaultRateLimitDelay)
		}
	}
}

func TestEmbedCooldownAfterFailure(t *testing.T) {
	p := &scriptedProvider{
		dims: 4,
		errs: []error{&types.ProviderError{Provider: "scripted", Class: types.Retryable, StatusCode: 503, Err: errors.New("unavailable")}},
	}
	clk := &fakeClock{now: time.Unix(1000, 0)}
	c := newTestClient(p, clk)
	ctx := context.Background()

	if _, err := c.Embed(ctx, "a", types.RoleDocument); !types.IsRetryable(err) {
		t.Fatalf("first call err = %v, want retryable", err)
	}
	if _, err := c.Embed(ctx, "b", types.RoleDocument); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if len(clk.sleeps) != 1 || clk.sleeps[0] != DefaultFailureCooldown {
		t.Errorf("sleeps = %v, want [%v]", clk.sleeps, DefaultFailureCooldown)
	}

	calls, failures := c.Stats()
	if calls != 2 || failures != 1 {
		t.Errorf("Stats() = %d, %d; want 2, 1", calls, failures)
	}
}

func TestEmbedNoSleepWhenGapElapsed(t *testing.T) {
	p := &scriptedProvider{dims: 2}
	clk := &fakeClock{now: time.Unix(1000, 0)}
	c := newTestClient(p, clk)
	ctx := context.Background()

	c.Embed(ctx, "a", types.RoleDocument)
	clk.now = clk.now.Add(5 * time.Second)
	c.Embed(ctx, "b", types.RoleDocument)

	if len(clk.sleeps) != 0 {
		t.Errorf("sleeps = %v, want none", clk.sleeps)
	}
}

func TestEmbedRejectsWrongDimensions(t *testing.T) {
	p := &scriptedProvider{dims: 4, vector: []float32{1, 2, 3}}
	clk := &fakeClock{now: time.Unix(1000, 0)}
	c := newTestClient(p, clk)

	_, err := c.Embed(context.Background(), "a", types.RoleDocument)
	var pe *types.ProviderError
	if !errors.As(err, &pe) || pe.Class != types.Fatal {
		t.Fatalf("err = %v, want fatal ProviderError", err)
	}
}

func TestEmbedClassifiesPlainErrors(t *testing.T) {
	p := &scriptedProvider{dims: 2, errs: []error{errors.New("boom")}}
	c := newTestClient(p, &fakeClock{now: time.Unix(1000, 0)})

	_, err := c.Embed(context.Background(), "a", types.RoleQuery)
	if !errors.Is(err, types.ErrProvider) || !types.IsRetryable(err) {
		t.Errorf("err = %v, want retryable provider error", err)
	}
	if p.roles[0] != types.RoleQuery {
		t.Errorf("role = %s, want query", p.roles[0])
	}
}

func TestEmbedEmptyText(t *testing.T) {
	p := &scriptedProvider{dims: 2}
	c := newTestClient(p, &fakeClock{now: time.Unix(1000, 0)})

	if _, err := c.Embed(context.Background(), "   ", types.RoleDocument); err == nil {
		t.Fatal("expected error for empty text")
	}
	if p.calls != 0 {
		t.Errorf("provider called %d times, want 0", p.calls)
	}
}

func TestEmbedCancelledWhilePacing(t *testing.T) {
	p := &scriptedProvider{dims: 2}
	c := New(p, Options{RateLimitDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	if _, err := c.Embed(ctx, "a", types.RoleDocument); err != nil {
		t.Fatalf("first call: %v", err)
	}
	cancel()
	_, err := c.Embed(ctx, "b", types.RoleDocument)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if p.calls != 1 {
		t.Errorf("provider called %d times, want 1", p.calls)
	}
}
