package provider

import (
	"context"
	"strings"
	"testing"

	"github.com/spetr/aethersync/pkg/types"
)

type stubProvider struct{ name string }

func (s *stubProvider) Name() string { return s.name }
func (s *stubProvider) Embed(ctx context.Context, text string, role types.EmbeddingRole) ([]float32, error) {
	return []float32{1}, nil
}
func (s *stubProvider) Dimensions() int                  { return 1 }
func (s *stubProvider) Warmup(ctx context.Context) error { return nil }
func (s *stubProvider) Close() error                     { return nil }

func TestRegistryCreateEmbedding(t *testing.T) {
	r := NewRegistry()
	r.RegisterEmbedding("stub", func(cfg EmbeddingConfig) (EmbeddingProvider, error) {
		return &stubProvider{name: cfg.Model}, nil
	})

	if !r.HasEmbedding("stub") {
		t.Fatal("HasEmbedding(stub) = false")
	}

	p, err := r.CreateEmbedding("stub", EmbeddingConfig{Model: "m1"})
	if err != nil {
		t.Fatalf("CreateEmbedding failed: %v", err)
	}
	if p.Name() != "m1" {
		t.Errorf("Name() = %q, want m1", p.Name())
	}

	_, err = r.CreateEmbedding("missing", EmbeddingConfig{})
	if err == nil || !strings.Contains(err.Error(), "stub") {
		t.Errorf("unknown provider error should list available providers, got %v", err)
	}
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()
	for _, n := range []string{"openai", "gemini", "plugin"} {
		r.RegisterEmbedding(n, nil)
	}
	got := strings.Join(r.ListEmbeddings(), ",")
	if got != "gemini,openai,plugin" {
		t.Errorf("ListEmbeddings() = %s", got)
	}
}
