package retrieval

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/spetr/aethersync/internal/relational"
	"github.com/spetr/aethersync/internal/schema"
	"github.com/spetr/aethersync/internal/testutil"
	"github.com/spetr/aethersync/internal/vector"
	"github.com/spetr/aethersync/pkg/types"
)

type fixedEmbedder struct {
	vec  []float32
	role types.EmbeddingRole
	err  error
}

func (e *fixedEmbedder) Embed(ctx context.Context, text string, role types.EmbeddingRole) ([]float32, error) {
	e.role = role
	return e.vec, e.err
}

type recordingSearcher struct {
	entity  types.Entity
	literal string
	k       int
	ratings []int
}

func (s *recordingSearcher) Nearest(ctx context.Context, entity types.Entity, literal string, k int, ratings []int) ([]types.Match, error) {
	s.entity, s.literal, s.k, s.ratings = entity, literal, k, ratings
	return []types.Match{{Entity: entity, ID: 1, Distance: 0.25}}, nil
}

func (s *recordingSearcher) CustomerEvidence(ctx context.Context, customerID int64) (*types.CustomerEvidence, error) {
	return &types.CustomerEvidence{CustomerID: customerID}, nil
}

func TestSearchReviewsAppliesClassifier(t *testing.T) {
	emb := &fixedEmbedder{vec: []float32{1, 0, 0}}
	srch := &recordingSearcher{}
	e := New(Config{Embedder: emb, Searcher: srch})

	res, err := e.Search(context.Background(), Request{Entity: types.EntityReview, Query: " great headphones "})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if emb.role != types.RoleQuery {
		t.Errorf("role = %s, want query", emb.role)
	}
	if fmt.Sprint(srch.ratings) != "[4 5]" || fmt.Sprint(res.Ratings) != "[4 5]" {
		t.Errorf("ratings = %v / %v", srch.ratings, res.Ratings)
	}
	if srch.k != DefaultLimit {
		t.Errorf("k = %d, want %d", srch.k, DefaultLimit)
	}
	want, _ := vector.Encode([]float32{1, 0, 0})
	if srch.literal != want {
		t.Errorf("literal = %s, want %s", srch.literal, want)
	}
	if res.Matches[0].Similarity() != 75 {
		t.Errorf("similarity = %v", res.Matches[0].Similarity())
	}
}

func TestSearchProductsIgnoresRatings(t *testing.T) {
	srch := &recordingSearcher{}
	e := New(Config{Embedder: &fixedEmbedder{vec: []float32{1}}, Searcher: srch, Limit: 3})

	if _, err := e.Search(context.Background(), Request{Entity: types.EntityProduct, Query: "best lamp"}); err != nil {
		t.Fatal(err)
	}
	if srch.ratings != nil || srch.k != 3 {
		t.Errorf("ratings = %v, k = %d", srch.ratings, srch.k)
	}
}

func TestSearchErrors(t *testing.T) {
	e := New(Config{Embedder: &fixedEmbedder{err: errors.New("quota")}, Searcher: &recordingSearcher{}})
	if _, err := e.Search(context.Background(), Request{Entity: types.EntityProduct, Query: "  "}); err == nil {
		t.Error("empty query accepted")
	}
	if _, err := e.Search(context.Background(), Request{Entity: types.EntityProduct, Query: "lamp"}); err == nil {
		t.Error("embed error swallowed")
	}

	e = New(Config{Embedder: &fixedEmbedder{vec: []float32{}}, Searcher: &recordingSearcher{}})
	if _, err := e.Search(context.Background(), Request{Entity: types.EntityProduct, Query: "lamp"}); !errors.Is(err, types.ErrEncoding) {
		t.Errorf("err = %v, want encoding error", err)
	}
}

func TestRankBySimilarityOnStore(t *testing.T) {
	ctx := context.Background()
	store, err := relational.Open(ctx, relational.Options{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "aethermart.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	testutil.Seed(t, store.DB())

	g := schema.New(store, 3, types.AlwaysConfirm)
	if _, err := g.Prepare(ctx, types.EntityReview); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	b, err := store.BeginVectorBatch(ctx, types.EntityReview)
	if err != nil {
		t.Fatal(err)
	}
	for id, v := range map[int64][]float32{1: {1, 0, 0}, 2: {0, 1, 0}, 4: {0.9, 0.1, 0}} {
		lit, _ := vector.Encode(v)
		if err := b.SetVector(ctx, id, lit); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}

	e := New(Config{Embedder: &fixedEmbedder{vec: []float32{1, 0, 0}}, Searcher: store})
	matches, err := e.RankBySimilarity(ctx, types.EntityReview, []float32{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 || matches[0].ID != 1 || matches[1].ID != 4 {
		t.Fatalf("matches = %+v", matches)
	}
	if matches[0].Distance > 1e-6 {
		t.Errorf("distance of identical vector = %v", matches[0].Distance)
	}

	// "bad" restricts to ratings 1 and 2: only review 2 remains.
	res, err := e.Search(ctx, Request{Entity: types.EntityReview, Query: "bad sound"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Matches) != 1 || res.Matches[0].ID != 2 || res.Matches[0].Rating != 2 {
		t.Errorf("filtered matches = %+v", res.Matches)
	}
}
