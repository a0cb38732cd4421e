// Package schema keeps the relational schema ready for the embedding
// pipeline and the sync worker: vector columns, vector indexes, legacy
// partitioning and queue claim columns.
package schema

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spetr/aethersync/pkg/provider"
	"github.com/spetr/aethersync/pkg/types"
)

// IndexOutcome says what EnsureIndex did.
type IndexOutcome int

const (
	IndexNone        IndexOutcome = iota // entity has no vector index
	IndexPresent                         // already there
	IndexCreated                         // built now
	IndexDeferred                        // rows still pending; built once every row has a vector
	IndexUnsupported                     // engine cannot build vector indexes
)

func (o IndexOutcome) String() string {
	switch o {
	case IndexPresent:
		return "present"
	case IndexCreated:
		return "created"
	case IndexDeferred:
		return "deferred"
	case IndexUnsupported:
		return "unsupported"
	}
	return "none"
}

// Queue bookkeeping columns added for claim-based draining.
var queueColumns = []types.ColumnSpec{
	{Name: "claimed_by", Kind: types.ColumnText},
	{Name: "claimed_at", Kind: types.ColumnTimestamp},
	{Name: "last_error", Kind: types.ColumnText},
}

// Report summarises the guard steps for one entity.
type Report struct {
	Entity           types.Entity
	PartitionRemoved bool
	ColumnAdded      bool
	Cleared          int // vectors removed by the one-time reset
	QueueColumns     []string
	Index            IndexOutcome
}

// Guard prepares tables before any embedding or sync work.
type Guard struct {
	catalog provider.SchemaCatalog
	dims    int
	confirm types.ConfirmFunc
}

// New creates a Guard writing vector columns of dims components.
// confirm is asked before clearing populated vector columns.
func New(catalog provider.SchemaCatalog, dims int, confirm types.ConfirmFunc) *Guard {
	if confirm == nil {
		confirm = func(context.Context, string) (bool, error) { return false, nil }
	}
	return &Guard{catalog: catalog, dims: dims, confirm: confirm}
}

func (g *Guard) vectorColumn(t types.EntityTable) types.ColumnSpec {
	return types.ColumnSpec{Name: t.VectorColumn, Kind: types.ColumnVector, Dims: g.dims}
}

// Prepare runs every pre-embedding step for entity: partition removal, the
// vector column, the one-time reset and the queue columns. The index is left
// to EnsureIndex, which needs a fully populated column.
func (g *Guard) Prepare(ctx context.Context, entity types.Entity) (*Report, error) {
	t := types.TableFor(entity)
	rep := &Report{Entity: entity}

	removed, err := g.RemovePartitioning(ctx, t.Table)
	if err != nil {
		return nil, err
	}
	rep.PartitionRemoved = removed

	added, err := g.EnsureColumn(ctx, t.Table, g.vectorColumn(t))
	if err != nil {
		return nil, err
	}
	rep.ColumnAdded = added

	cleared, err := g.adopt(ctx, t, added)
	if err != nil {
		return nil, err
	}
	rep.Cleared = cleared

	cols, err := g.EnsureQueue(ctx, entity)
	if err != nil {
		return nil, err
	}
	rep.QueueColumns = cols

	return rep, nil
}

// RemovePartitioning drops legacy partitioning from table. It reports
// whether anything was removed.
func (g *Guard) RemovePartitioning(ctx context.Context, table string) (bool, error) {
	partitioned, err := g.catalog.IsPartitioned(ctx, table)
	if err != nil {
		return false, &types.SchemaError{Table: table, Step: "inspect partitioning", Err: err}
	}
	if !partitioned {
		return false, nil
	}
	slog.Info("removing legacy partitioning", "table", table)
	if err := g.catalog.RemovePartitioning(ctx, table); err != nil {
		return false, &types.SchemaError{Table: table, Step: "remove partitioning", Err: err}
	}
	return true, nil
}

// EnsureColumn adds col to table unless present. It reports whether the
// column was added.
func (g *Guard) EnsureColumn(ctx context.Context, table string, col types.ColumnSpec) (bool, error) {
	exists, err := g.catalog.ColumnExists(ctx, table, col.Name)
	if err != nil {
		return false, &types.SchemaError{Table: table, Step: "inspect column " + col.Name, Err: err}
	}
	if exists {
		return false, nil
	}
	slog.Info("adding column", "table", table, "column", col.Name)
	if err := g.catalog.AddColumn(ctx, table, col); err != nil {
		return false, &types.SchemaError{Table: table, Step: "add column " + col.Name, Err: err}
	}
	return true, nil
}

// adopt takes ownership of a vector column. Columns whose index needs every
// value written by this pipeline are cleared the first time, after
// confirmation when they hold data.
func (g *Guard) adopt(ctx context.Context, t types.EntityTable, added bool) (int, error) {
	marked, err := g.catalog.GuardMarked(ctx, t.Table, t.VectorColumn)
	if err != nil {
		return 0, &types.SchemaError{Table: t.Table, Step: "read guard state", Err: err}
	}
	if marked {
		return 0, nil
	}

	cleared := 0
	if t.ResetOnAdopt && !added {
		n, err := g.catalog.CountNonNull(ctx, t.Table, t.VectorColumn)
		if err != nil {
			return 0, &types.SchemaError{Table: t.Table, Step: "count vectors", Err: err}
		}
		if n > 0 {
			msg := fmt.Sprintf("Clear %d existing vectors in %s.%s so they can be rebuilt?", n, t.Table, t.VectorColumn)
			ok, err := g.confirm(ctx, msg)
			if err != nil {
				return 0, &types.SchemaError{Table: t.Table, Step: "confirm reset", Err: err}
			}
			if !ok {
				return 0, &types.SchemaError{Table: t.Table, Step: "reset declined", Err: types.ErrCancelled}
			}
			if err := g.catalog.ClearColumn(ctx, t.Table, t.VectorColumn); err != nil {
				return 0, &types.SchemaError{Table: t.Table, Step: "clear vectors", Err: err}
			}
			slog.Warn("cleared existing vectors", "table", t.Table, "column", t.VectorColumn, "count", n)
			cleared = n
		}
	}

	if err := g.catalog.MarkGuarded(ctx, t.Table, t.VectorColumn, g.dims); err != nil {
		return 0, &types.SchemaError{Table: t.Table, Step: "record guard state", Err: err}
	}
	return cleared, nil
}

// EnsureQueue adds the claim columns to the entity's queue table and lets
// its status column hold IN_PROGRESS. It returns the added column names.
func (g *Guard) EnsureQueue(ctx context.Context, entity types.Entity) ([]string, error) {
	t := types.TableFor(entity)
	var added []string
	for _, col := range queueColumns {
		ok, err := g.EnsureColumn(ctx, t.QueueTable, col)
		if err != nil {
			return nil, err
		}
		if ok {
			added = append(added, col.Name)
		}
	}
	if err := g.catalog.AllowStatus(ctx, t.QueueTable, "sync_status", string(types.JobInProgress)); err != nil {
		return nil, &types.SchemaError{Table: t.QueueTable, Step: "allow IN_PROGRESS status", Err: err}
	}
	return added, nil
}

// EnsureIndex builds the entity's vector index when the engine supports it
// and no row is pending. Safe to call repeatedly.
func (g *Guard) EnsureIndex(ctx context.Context, entity types.Entity) (IndexOutcome, error) {
	t := types.TableFor(entity)
	if t.VectorIndex == "" {
		return IndexNone, nil
	}
	if !g.catalog.SupportsVectorIndex() {
		return IndexUnsupported, nil
	}

	exists, err := g.catalog.IndexExists(ctx, t.Table, t.VectorIndex)
	if err != nil {
		return IndexNone, &types.SchemaError{Table: t.Table, Step: "inspect index", Err: err}
	}
	if exists {
		return IndexPresent, nil
	}

	pending, err := g.catalog.CountNull(ctx, t.Table, t.VectorColumn)
	if err != nil {
		return IndexNone, &types.SchemaError{Table: t.Table, Step: "count pending", Err: err}
	}
	if pending > 0 {
		slog.Info("vector index deferred until all rows are embedded", "table", t.Table, "pending", pending)
		return IndexDeferred, nil
	}

	slog.Info("creating vector index", "table", t.Table, "index", t.VectorIndex)
	if err := g.catalog.CreateVectorIndex(ctx, t.Table, t.VectorIndex, g.vectorColumn(t)); err != nil {
		return IndexNone, &types.SchemaError{Table: t.Table, Step: "create index " + t.VectorIndex, Err: err}
	}
	return IndexCreated, nil
}
