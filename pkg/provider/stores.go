package provider

import (
	"context"
	"time"

	"github.com/spetr/aethersync/pkg/types"
)

// ProfileSource selects entities whose vector column is still NULL.
type ProfileSource interface {
	// PendingCustomers returns customers without a vector, with their
	// distinct purchased category names.
	PendingCustomers(ctx context.Context) ([]*types.CustomerProfile, error)

	// PendingProducts returns described products without a vector.
	PendingProducts(ctx context.Context) ([]*types.ProductProfile, error)

	// PendingReviews returns reviews with text and without a vector.
	PendingReviews(ctx context.Context) ([]*types.ReviewProfile, error)
}

// VectorWriter opens commit batches for vector updates.
type VectorWriter interface {
	BeginVectorBatch(ctx context.Context, entity types.Entity) (VectorBatch, error)
}

// VectorBatch is one uncommitted group of vector updates.
type VectorBatch interface {
	// SetVector writes the encoded vector literal for one entity id.
	SetVector(ctx context.Context, id int64, literal string) error
	Commit() error
	Rollback() error
}

// StatsReader reports embedding progress.
type StatsReader interface {
	EmbeddingStats(ctx context.Context, entity types.Entity) (*types.EmbeddingStats, error)
}

// SchemaCatalog is the catalog access needed by the schema guard.
type SchemaCatalog interface {
	ColumnExists(ctx context.Context, table, column string) (bool, error)
	IndexExists(ctx context.Context, table, index string) (bool, error)
	IsPartitioned(ctx context.Context, table string) (bool, error)
	RemovePartitioning(ctx context.Context, table string) error
	AddColumn(ctx context.Context, table string, col types.ColumnSpec) error
	CountNonNull(ctx context.Context, table, column string) (int, error)
	CountNull(ctx context.Context, table, column string) (int, error)
	ClearColumn(ctx context.Context, table, column string) error

	// CreateVectorIndex builds a vector index, declaring the column NOT NULL
	// first when the engine requires it. Only valid when SupportsVectorIndex.
	CreateVectorIndex(ctx context.Context, table, index string, col types.ColumnSpec) error
	SupportsVectorIndex() bool

	// AllowStatus makes an ENUM status column accept value; no-op elsewhere.
	AllowStatus(ctx context.Context, table, column, value string) error

	// GuardMarked reports whether the guard already owns table.column.
	GuardMarked(ctx context.Context, table, column string) (bool, error)
	MarkGuarded(ctx context.Context, table, column string, dims int) error
}

// QueueStore gives the sync worker access to the queue tables.
type QueueStore interface {
	// PendingJobs returns PENDING jobs of a queue ordered by queue_id.
	PendingJobs(ctx context.Context, queue types.Entity) ([]*types.SyncJob, error)

	// ClaimJob moves a job from PENDING to IN_PROGRESS if nobody else did.
	ClaimJob(ctx context.Context, queue types.Entity, queueID int64, owner string) (bool, error)

	// FinishJob moves a claimed job to a terminal status.
	FinishJob(ctx context.Context, queue types.Entity, queueID int64, owner string, status types.JobStatus, cause string) error

	// ReleaseExpired returns IN_PROGRESS jobs claimed before cutoff to PENDING.
	ReleaseExpired(ctx context.Context, queue types.Entity, cutoff time.Time) (int, error)

	// RequeueFailed returns FAILED jobs to PENDING.
	RequeueFailed(ctx context.Context, queue types.Entity) (int, error)

	// QueueStats counts jobs per status.
	QueueStats(ctx context.Context, queue types.Entity) (*types.QueueStats, error)

	// SourceRows reads the base table in queue snapshot shape plus the
	// load-only columns, for backfills.
	SourceRows(ctx context.Context, entity types.Entity) ([]map[string]any, error)
}

// Searcher ranks stored vectors against a query vector.
type Searcher interface {
	// Nearest returns the k rows closest to the encoded query vector.
	// ratings, when non-empty, restricts reviews to those ratings.
	Nearest(ctx context.Context, entity types.Entity, literal string, k int, ratings []int) ([]types.Match, error)

	// CustomerEvidence returns purchase facts backing a customer match.
	CustomerEvidence(ctx context.Context, customerID int64) (*types.CustomerEvidence, error)
}

// UpsertResult says what an upsert did.
type UpsertResult struct {
	Matched  bool // an existing document was updated
	Inserted bool // a new document was created
}

// DocumentStore is the document side of the sync.
type DocumentStore interface {
	Name() string

	// Upsert finds the document whose keyField equals key. set is applied with
	// $set semantics (dotted paths allowed); setOnInsert only when the
	// document is created.
	Upsert(ctx context.Context, collection, keyField string, key any, set, setOnInsert map[string]any) (UpsertResult, error)

	Close(ctx context.Context) error
}
