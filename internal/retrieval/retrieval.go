// Package retrieval ranks products, reviews and customers against a natural
// language query by cosine distance between stored and query embeddings.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spetr/aethersync/internal/vector"
	"github.com/spetr/aethersync/pkg/provider"
	"github.com/spetr/aethersync/pkg/types"
)

// DefaultLimit is the number of matches returned when none is requested.
const DefaultLimit = 5

// Embedder produces query vectors; *embedding.Client satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string, role types.EmbeddingRole) ([]float32, error)
}

// Config contains engine configuration.
type Config struct {
	Embedder   Embedder
	Searcher   provider.Searcher
	Classifier RatingClassifier // default: KeywordClassifier
	Limit      int
}

// Engine answers similarity queries.
type Engine struct {
	embedder   Embedder
	searcher   provider.Searcher
	classifier RatingClassifier
	limit      int
}

// Request is one search.
type Request struct {
	Entity types.Entity
	Query  string
	Limit  int

	// Ratings overrides the classifier for review searches.
	Ratings []int
}

// Result is the ranked answer to a Request.
type Result struct {
	Entity  types.Entity
	Query   string
	Ratings []int // rating filter applied to reviews, if any
	Matches []types.Match
}

// New creates a new engine.
func New(cfg Config) *Engine {
	if cfg.Classifier == nil {
		cfg.Classifier = NewKeywordClassifier()
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	return &Engine{
		embedder:   cfg.Embedder,
		searcher:   cfg.Searcher,
		classifier: cfg.Classifier,
		limit:      cfg.Limit,
	}
}

// Search embeds the query with the query role and ranks the entity's rows.
func (e *Engine) Search(ctx context.Context, req Request) (*Result, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, errors.New("search: empty query")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = e.limit
	}

	res := &Result{Entity: req.Entity, Query: query}
	if req.Entity == types.EntityReview {
		res.Ratings = req.Ratings
		if len(res.Ratings) == 0 {
			res.Ratings = e.classifier.Ratings(query)
		}
		if len(res.Ratings) > 0 {
			slog.Debug("review rating filter", "query", query, "ratings", res.Ratings)
		}
	}

	vec, err := e.embedder.Embed(ctx, query, types.RoleQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	res.Matches, err = e.RankBySimilarity(ctx, req.Entity, vec, limit, res.Ratings)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RankBySimilarity returns the k rows closest to queryVector, nearest first.
func (e *Engine) RankBySimilarity(ctx context.Context, entity types.Entity, queryVector []float32, k int, ratings []int) ([]types.Match, error) {
	lit, err := vector.Encode(queryVector)
	if err != nil {
		return nil, err
	}
	matches, err := e.searcher.Nearest(ctx, entity, lit, k, ratings)
	if err != nil {
		return nil, fmt.Errorf("rank %s: %w", entity, err)
	}
	return matches, nil
}

// Evidence returns the purchase facts behind a customer match.
func (e *Engine) Evidence(ctx context.Context, customerID int64) (*types.CustomerEvidence, error) {
	return e.searcher.CustomerEvidence(ctx, customerID)
}
