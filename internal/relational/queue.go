package relational

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spetr/aethersync/pkg/types"
)

// Columns of the queue tables that are bookkeeping, not snapshot data.
var queueMetaColumns = map[string]bool{
	"queue_id":    true,
	"sync_status": true,
	"claimed_by":  true,
	"claimed_at":  true,
	"last_error":  true,
}

// PendingJobs returns the PENDING jobs of queue ordered by queue_id.
func (s *Store) PendingJobs(ctx context.Context, queue types.Entity) ([]*types.SyncJob, error) {
	t := types.TableFor(queue)
	q := fmt.Sprintf("SELECT * FROM %s WHERE sync_status = ? ORDER BY queue_id", quoteIdent(t.QueueTable))
	rows, err := s.db.QueryContext(ctx, q, string(types.JobPending))
	if err != nil {
		return nil, fmt.Errorf("select pending %s jobs: %w", queue, err)
	}
	defer rows.Close()

	maps, err := scanMaps(rows)
	if err != nil {
		return nil, err
	}

	jobs := make([]*types.SyncJob, 0, len(maps))
	for _, m := range maps {
		job := &types.SyncJob{
			Queue:    queue,
			Status:   types.JobPending,
			Snapshot: make(map[string]any, len(m)),
		}
		qid, ok := asInt64(m["queue_id"])
		if !ok {
			return nil, fmt.Errorf("%s: queue_id is not an integer: %v", t.QueueTable, m["queue_id"])
		}
		job.QueueID = qid
		// A bad entity id is left for the mapper to reject per job.
		job.EntityID, _ = asInt64(m[t.IDColumn])
		for k, v := range m {
			if !queueMetaColumns[k] {
				job.Snapshot[k] = v
			}
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// ClaimJob moves a job from PENDING to IN_PROGRESS for owner. It returns
// false when another worker got there first.
func (s *Store) ClaimJob(ctx context.Context, queue types.Entity, queueID int64, owner string) (bool, error) {
	t := types.TableFor(queue)
	q := fmt.Sprintf(`UPDATE %s SET sync_status = ?, claimed_by = ?, claimed_at = ?
		WHERE queue_id = ? AND sync_status = ?`, quoteIdent(t.QueueTable))
	res, err := s.db.ExecContext(ctx, q,
		string(types.JobInProgress), owner, time.Now().UTC(), queueID, string(types.JobPending))
	if err != nil {
		return false, persistErr("claim job", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, persistErr("claim job", err)
	}
	return n == 1, nil
}

// FinishJob moves a job claimed by owner to a terminal status.
func (s *Store) FinishJob(ctx context.Context, queue types.Entity, queueID int64, owner string, status types.JobStatus, cause string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finish job: %s is not a terminal status", status)
	}
	t := types.TableFor(queue)
	var lastErr any
	if cause != "" {
		lastErr = cause
	}
	q := fmt.Sprintf(`UPDATE %s SET sync_status = ?, last_error = ?
		WHERE queue_id = ? AND claimed_by = ? AND sync_status = ?`, quoteIdent(t.QueueTable))
	res, err := s.db.ExecContext(ctx, q, string(status), lastErr, queueID, owner, string(types.JobInProgress))
	if err != nil {
		return persistErr("finish job", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return persistErr("finish job", fmt.Errorf("%s job %d is no longer claimed by %s", queue, queueID, owner))
	}
	return nil
}

// ReleaseExpired returns jobs claimed before cutoff to PENDING.
func (s *Store) ReleaseExpired(ctx context.Context, queue types.Entity, cutoff time.Time) (int, error) {
	t := types.TableFor(queue)
	q := fmt.Sprintf(`UPDATE %s SET sync_status = ?, claimed_by = NULL, claimed_at = NULL
		WHERE sync_status = ? AND claimed_at < ?`, quoteIdent(t.QueueTable))
	res, err := s.db.ExecContext(ctx, q, string(types.JobPending), string(types.JobInProgress), cutoff.UTC())
	if err != nil {
		return 0, persistErr("release expired jobs", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// RequeueFailed returns FAILED jobs to PENDING.
func (s *Store) RequeueFailed(ctx context.Context, queue types.Entity) (int, error) {
	t := types.TableFor(queue)
	q := fmt.Sprintf(`UPDATE %s SET sync_status = ?, claimed_by = NULL, claimed_at = NULL, last_error = NULL
		WHERE sync_status = ?`, quoteIdent(t.QueueTable))
	res, err := s.db.ExecContext(ctx, q, string(types.JobPending), string(types.JobFailed))
	if err != nil {
		return 0, persistErr("requeue failed jobs", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// QueueStats counts jobs per status.
func (s *Store) QueueStats(ctx context.Context, queue types.Entity) (*types.QueueStats, error) {
	t := types.TableFor(queue)
	q := fmt.Sprintf("SELECT sync_status, COUNT(*) FROM %s GROUP BY sync_status", quoteIdent(t.QueueTable))
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("count %s jobs: %w", queue, err)
	}
	defer rows.Close()

	stats := &types.QueueStats{Queue: queue, Counts: make(map[types.JobStatus]int)}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats.Counts[types.JobStatus(status)] = n
	}
	return stats, rows.Err()
}

// sourceQueries read base tables with the queue columns plus the columns
// only the full load writes.
var sourceQueries = map[types.Entity]string{
	types.EntityCustomer: `SELECT customer_id, first_name, last_name, email, city, state, zipcode,
			registration_date
		FROM Customers ORDER BY customer_id`,
	types.EntityProduct: `SELECT p.product_id, p.product_name, p.price,
			COALESCE(c.category_name, 'Uncategorized') AS category_name, p.current_rating
		FROM Products p
		LEFT JOIN Categories c ON c.category_id = p.category_id
		ORDER BY p.product_id`,
	types.EntityReview: `SELECT review_id, customer_id, product_id, rating, review_text, review_date
		FROM Reviews ORDER BY review_id`,
}

// SourceRows reads every row of the entity's base table for a backfill.
func (s *Store) SourceRows(ctx context.Context, entity types.Entity) ([]map[string]any, error) {
	q, ok := sourceQueries[entity]
	if !ok {
		return nil, fmt.Errorf("no source query for %s", entity)
	}
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("select %s rows: %w", entity, err)
	}
	defer rows.Close()
	return scanMaps(rows)
}

// scanMaps reads every row into a column-name keyed map.
func scanMaps(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			// Drivers reuse byte buffers between rows
			if b, ok := vals[i].([]byte); ok {
				vals[i] = string(b)
			}
			m[c] = vals[i]
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), n == float64(int64(n))
	case string:
		var id int64
		_, err := fmt.Sscan(n, &id)
		return id, err == nil
	}
	return 0, false
}
