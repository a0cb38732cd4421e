// Package pipeline embeds pending customers, products and reviews and
// writes the vectors back in small committed batches.
// A run is resumable: only rows whose vector is still NULL are selected, so
// running again after an interruption continues where the last commit left off.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spetr/aethersync/internal/vector"
	"github.com/spetr/aethersync/pkg/provider"
	"github.com/spetr/aethersync/pkg/types"
)

// DefaultCommitEvery is the number of updates per committed batch.
const DefaultCommitEvery = 10

// Embedder produces document vectors; *embedding.Client satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string, role types.EmbeddingRole) ([]float32, error)
}

// Progress is reported after every entity.
type Progress struct {
	Entity    types.Entity
	Total     int
	Processed int
	Failed    int
	CurrentID int64
}

// Config contains pipeline configuration.
type Config struct {
	Source      provider.ProfileSource
	Writer      provider.VectorWriter
	Embedder    Embedder
	CommitEvery int
	Confirm     types.ConfirmFunc // asked once per run before any paid call
	OnProgress  func(Progress)
}

// Report is the outcome of one run.
type Report struct {
	Entity    types.Entity
	Selected  int
	Embedded  int
	Persisted int
	FailedIDs []int64
	Declined  bool
	Duration  time.Duration
}

// Pipeline runs embedding passes.
type Pipeline struct {
	source      provider.ProfileSource
	writer      provider.VectorWriter
	embedder    Embedder
	commitEvery int
	confirm     types.ConfirmFunc
	onProgress  func(Progress)
}

// New creates a new pipeline.
func New(cfg Config) *Pipeline {
	if cfg.CommitEvery <= 0 {
		cfg.CommitEvery = DefaultCommitEvery
	}
	if cfg.Confirm == nil {
		cfg.Confirm = types.AlwaysConfirm
	}
	return &Pipeline{
		source:      cfg.Source,
		writer:      cfg.Writer,
		embedder:    cfg.Embedder,
		commitEvery: cfg.CommitEvery,
		confirm:     cfg.Confirm,
		onProgress:  cfg.OnProgress,
	}
}

// Candidates selects the pending entities and builds their profile text.
func (p *Pipeline) Candidates(ctx context.Context, entity types.Entity) ([]types.Candidate, error) {
	var out []types.Candidate
	add := func(id int64, text string) {
		out = append(out, types.Candidate{Entity: entity, ID: id, Profile: text, State: types.Pending()})
	}

	switch entity {
	case types.EntityCustomer:
		rows, err := p.source.PendingCustomers(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			add(r.ID, CustomerText(r))
		}
	case types.EntityProduct:
		rows, err := p.source.PendingProducts(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			add(r.ID, ProductText(r))
		}
	case types.EntityReview:
		rows, err := p.source.PendingReviews(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			add(r.ID, ReviewText(r))
		}
	default:
		return nil, fmt.Errorf("pipeline: unknown entity %q", entity)
	}
	return out, nil
}

// Run embeds every pending entity of one kind. Failed embeddings are
// recorded and skipped; a persistence failure or a rejected credential
// aborts the run, keeping every batch committed so far.
func (p *Pipeline) Run(ctx context.Context, entity types.Entity) (*Report, error) {
	start := time.Now()
	rep := &Report{Entity: entity}
	defer func() { rep.Duration = time.Since(start) }()

	candidates, err := p.Candidates(ctx, entity)
	if err != nil {
		return rep, fmt.Errorf("select pending %s: %w", entity, err)
	}
	rep.Selected = len(candidates)
	if len(candidates) == 0 {
		slog.Info("nothing to embed", "entity", entity)
		return rep, nil
	}

	ok, err := p.confirm(ctx, fmt.Sprintf("Embed %d pending %s rows?", len(candidates), entity))
	if err != nil {
		return rep, err
	}
	if !ok {
		rep.Declined = true
		slog.Info("embedding declined", "entity", entity, "pending", len(candidates))
		return rep, nil
	}

	slog.Info("embedding started", "entity", entity, "pending", len(candidates), "commit_every", p.commitEvery)

	b := &batcher{writer: p.writer, entity: entity, limit: p.commitEvery, rep: rep}
	for i := range candidates {
		c := &candidates[i]

		if err := ctx.Err(); err != nil {
			return rep, b.finish(err)
		}

		vec, err := p.embedder.Embed(ctx, c.Profile, types.RoleDocument)
		if err != nil && ctx.Err() != nil {
			// Interrupted, not failed: the row stays pending for the next run.
			return rep, b.finish(ctx.Err())
		}
		if err != nil {
			rep.FailedIDs = append(rep.FailedIDs, c.ID)
			slog.Warn("embedding failed", "entity", entity, "id", c.ID, "retryable", types.IsRetryable(err), "error", err)
			if isCredentialFailure(err) {
				return rep, b.finish(err)
			}
			p.report(rep, c.ID, len(candidates), i+1)
			continue
		}

		lit, err := vector.Encode(vec)
		if err != nil {
			rep.FailedIDs = append(rep.FailedIDs, c.ID)
			slog.Warn("vector rejected", "entity", entity, "id", c.ID, "error", err)
			p.report(rep, c.ID, len(candidates), i+1)
			continue
		}
		c.State = types.Embedded(vec)
		rep.Embedded++

		if err := b.add(ctx, c.ID, lit); err != nil {
			return rep, err
		}
		p.report(rep, c.ID, len(candidates), i+1)
	}

	if err := b.finish(nil); err != nil {
		return rep, err
	}

	slog.Info("embedding finished",
		"entity", entity,
		"selected", rep.Selected,
		"persisted", rep.Persisted,
		"failed", len(rep.FailedIDs),
		"duration", time.Since(start).Round(time.Millisecond))
	return rep, nil
}

func (p *Pipeline) report(rep *Report, id int64, total, processed int) {
	if p.onProgress == nil {
		return
	}
	p.onProgress(Progress{
		Entity:    rep.Entity,
		Total:     total,
		Processed: processed,
		Failed:    len(rep.FailedIDs),
		CurrentID: id,
	})
}

// isCredentialFailure reports a rejected credential; every further call
// would fail the same way.
func isCredentialFailure(err error) bool {
	var pe *types.ProviderError
	return errors.As(err, &pe) && pe.Class == types.Fatal && pe.Credential
}

// batcher groups vector updates into transactions of limit updates.
type batcher struct {
	writer provider.VectorWriter
	entity types.Entity
	limit  int
	rep    *Report

	open   provider.VectorBatch
	staged int
}

func (b *batcher) add(ctx context.Context, id int64, literal string) error {
	if b.open == nil {
		vb, err := b.writer.BeginVectorBatch(ctx, b.entity)
		if err != nil {
			return err
		}
		b.open = vb
	}
	if err := b.open.SetVector(ctx, id, literal); err != nil {
		b.rollback()
		return err
	}
	b.staged++
	if b.staged >= b.limit {
		return b.commit()
	}
	return nil
}

func (b *batcher) commit() error {
	if b.open == nil {
		return nil
	}
	err := b.open.Commit()
	n := b.staged
	b.open, b.staged = nil, 0
	if err != nil {
		slog.Error("batch commit failed", "entity", b.entity, "updates", n, "error", err)
		return err
	}
	b.rep.Persisted += n
	slog.Debug("batch committed", "entity", b.entity, "updates", n, "persisted", b.rep.Persisted)
	return nil
}

func (b *batcher) rollback() {
	if b.open == nil {
		return
	}
	if err := b.open.Rollback(); err != nil {
		slog.Warn("batch rollback failed", "entity", b.entity, "error", err)
	}
	b.open, b.staged = nil, 0
}

// finish commits the staged updates and returns cause, or the commit
// error when there is no cause.
func (b *batcher) finish(cause error) error {
	if err := b.commit(); err != nil && cause == nil {
		return err
	}
	return cause
}
