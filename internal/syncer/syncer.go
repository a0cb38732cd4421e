// Package syncer mirrors relational mutations into the document store by
// draining the per-entity sync queues.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/spetr/aethersync/pkg/provider"
	"github.com/spetr/aethersync/pkg/types"
)

// DefaultLeaseTimeout is how long a claim is honoured before the job is
// handed to another worker.
const DefaultLeaseTimeout = 10 * time.Minute

// Config contains syncer configuration.
type Config struct {
	Queue        provider.QueueStore
	Documents    provider.DocumentStore
	WorkerID     string        // claim owner; generated when empty
	LeaseTimeout time.Duration // negative disables lease recovery
	Now          func() time.Time
}

// Syncer drains sync queues into the document store.
type Syncer struct {
	queue    provider.QueueStore
	docs     provider.DocumentStore
	workerID string
	lease    time.Duration
	now      func() time.Time
}

// DrainReport is the outcome of draining one queue.
type DrainReport struct {
	Queue      types.Entity
	Released   int // expired claims returned to PENDING first
	Selected   int
	Completed  int
	Failed     int
	Skipped    int // claimed by another worker
	FailedJobs []int64
	Duration   time.Duration
}

// BackfillReport is the outcome of a full relational to document load.
type BackfillReport struct {
	Entity    types.Entity
	Rows      int
	Inserted  int
	Updated   int
	FailedIDs []int64
	Duration  time.Duration
}

// New creates a new syncer.
func New(cfg Config) *Syncer {
	if cfg.WorkerID == "" {
		cfg.WorkerID = "aethersync-" + uuid.NewString()
	}
	if cfg.LeaseTimeout == 0 {
		cfg.LeaseTimeout = DefaultLeaseTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Syncer{
		queue:    cfg.Queue,
		docs:     cfg.Documents,
		workerID: cfg.WorkerID,
		lease:    cfg.LeaseTimeout,
		now:      cfg.Now,
	}
}

// WorkerID returns the claim owner used by this syncer.
func (s *Syncer) WorkerID() string {
	return s.workerID
}

// Drain claims and processes every PENDING job of queue in queue_id order.
// A job that cannot be mapped or written is marked FAILED and the drain
// continues; only queue bookkeeping failures abort it.
func (s *Syncer) Drain(ctx context.Context, queue types.Entity) (*DrainReport, error) {
	start := s.now()
	rep := &DrainReport{Queue: queue}
	defer func() { rep.Duration = s.now().Sub(start) }()

	if s.lease > 0 {
		n, err := s.queue.ReleaseExpired(ctx, queue, start.Add(-s.lease))
		if err != nil {
			return rep, err
		}
		if n > 0 {
			slog.Warn("released expired claims", "queue", queue, "jobs", n)
		}
		rep.Released = n
	}

	jobs, err := s.queue.PendingJobs(ctx, queue)
	if err != nil {
		return rep, err
	}
	rep.Selected = len(jobs)
	if len(jobs) == 0 {
		slog.Debug("queue empty", "queue", queue)
		return rep, nil
	}

	m := MappingFor(queue)
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		ok, err := s.queue.ClaimJob(ctx, queue, job.QueueID, s.workerID)
		if err != nil {
			return rep, err
		}
		if !ok {
			rep.Skipped++
			slog.Debug("job claimed elsewhere", "queue", queue, "queue_id", job.QueueID)
			continue
		}

		status, cause := types.JobCompleted, ""
		if _, err := s.apply(ctx, m, job.Snapshot, m.Document); err != nil {
			status, cause = types.JobFailed, err.Error()
			slog.Warn("sync job failed",
				"queue", queue,
				"queue_id", job.QueueID,
				"entity_id", job.EntityID,
				"mapping", errors.Is(err, types.ErrMapping),
				"error", err)
		}

		if err := s.queue.FinishJob(ctx, queue, job.QueueID, s.workerID, status, cause); err != nil {
			return rep, err
		}
		if status == types.JobFailed {
			rep.Failed++
			rep.FailedJobs = append(rep.FailedJobs, job.QueueID)
		} else {
			rep.Completed++
		}
	}

	slog.Info("queue drained",
		"queue", queue,
		"completed", rep.Completed,
		"failed", rep.Failed,
		"skipped", rep.Skipped)
	return rep, nil
}

// DrainAll drains queues in order, stopping at the first bookkeeping error.
func (s *Syncer) DrainAll(ctx context.Context, queues []types.Entity) ([]*DrainReport, error) {
	reports := make([]*DrainReport, 0, len(queues))
	for _, q := range queues {
		rep, err := s.Drain(ctx, q)
		reports = append(reports, rep)
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// Backfill loads every row of entity's base table into the document store
// with the same upsert as the queue drain. Besides the queue fields it
// writes the mapping's Backfill fields.
func (s *Syncer) Backfill(ctx context.Context, entity types.Entity) (*BackfillReport, error) {
	start := s.now()
	rep := &BackfillReport{Entity: entity}
	defer func() { rep.Duration = s.now().Sub(start) }()

	rows, err := s.queue.SourceRows(ctx, entity)
	if err != nil {
		return rep, err
	}
	rep.Rows = len(rows)

	m := MappingFor(entity)
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		res, err := s.apply(ctx, m, row, m.BackfillDocument)
		if err != nil {
			id, _ := toInt(row[m.SourceKey])
			rep.FailedIDs = append(rep.FailedIDs, id)
			slog.Warn("backfill row failed", "entity", entity, "id", id, "error", err)
			if errors.Is(err, context.Canceled) {
				return rep, err
			}
			continue
		}
		if res.Inserted {
			rep.Inserted++
		} else {
			rep.Updated++
		}
	}

	slog.Info("backfill finished",
		"entity", entity,
		"rows", rep.Rows,
		"inserted", rep.Inserted,
		"updated", rep.Updated,
		"failed", len(rep.FailedIDs))
	return rep, nil
}

// Requeue returns the FAILED jobs of queue to PENDING.
func (s *Syncer) Requeue(ctx context.Context, queue types.Entity) (int, error) {
	n, err := s.queue.RequeueFailed(ctx, queue)
	if err != nil {
		return 0, err
	}
	slog.Info("failed jobs requeued", "queue", queue, "jobs", n)
	return n, nil
}

// apply maps row with build and upserts it into the entity's collection.
func (s *Syncer) apply(ctx context.Context, m Mapping, row map[string]any, build func(map[string]any) (int64, map[string]any, error)) (provider.UpsertResult, error) {
	key, set, err := build(row)
	if err != nil {
		return provider.UpsertResult{}, err
	}
	set["last_synced_at"] = s.now().UTC()
	return s.docs.Upsert(ctx, m.Collection, m.KeyField, key, set, m.OnInsert())
}
