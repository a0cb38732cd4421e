package host

import (
	"context"
	"errors"
	"testing"

	"github.com/spetr/aethersync/pkg/plugin/shared"
	"github.com/spetr/aethersync/pkg/types"
)

type fakePlugin struct {
	err      error
	lastRole string
}

func (f *fakePlugin) Name() string { return "" }
func (f *fakePlugin) Embed(text, role string) ([]float32, error) {
	f.lastRole = role
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.5, 0.5}, nil
}
func (f *fakePlugin) Dimensions() int { return 2 }
func (f *fakePlugin) Warmup() error   { return nil }
func (f *fakePlugin) Close() error    { return nil }

func TestAdapterPassesRole(t *testing.T) {
	fp := &fakePlugin{}
	a := NewEmbeddingAdapter("hash", fp)

	if a.Name() != "hash" {
		t.Errorf("Name() = %q, want fallback to load name", a.Name())
	}
	if _, err := a.Embed(context.Background(), "x", types.RoleQuery); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if fp.lastRole != shared.RoleQuery {
		t.Errorf("role = %q, want %q", fp.lastRole, shared.RoleQuery)
	}
}

func TestAdapterClassifiesErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.ProviderClass
	}{
		{"retryable plugin error", &shared.PluginError{Message: "busy", Retryable: true}, types.Retryable},
		{"fatal plugin error", &shared.PluginError{Message: "bad input"}, types.Fatal},
		{"rpc failure", errors.New("connection is shut down"), types.Fatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewEmbeddingAdapter("p", &fakePlugin{err: tt.err})
			_, err := a.Embed(context.Background(), "x", types.RoleDocument)
			var pe *types.ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("err = %v, want *ProviderError", err)
			}
			if pe.Class != tt.want {
				t.Errorf("Class = %s, want %s", pe.Class, tt.want)
			}
		})
	}
}

func TestAdapterCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := NewEmbeddingAdapter("p", &fakePlugin{})
	if _, err := a.Embed(ctx, "x", types.RoleDocument); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestDiscoverPluginsMissingDir(t *testing.T) {
	m := NewManager(t.TempDir() + "/none")
	names, err := m.DiscoverPlugins()
	if err != nil || len(names) != 0 {
		t.Errorf("DiscoverPlugins() = %v, %v", names, err)
	}
}
