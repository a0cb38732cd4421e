package relational

import (
	"context"
	"fmt"

	"github.com/spetr/aethersync/pkg/types"
)

// ColumnExists reports whether table has column.
func (s *Store) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	return s.dialect.columnExists(ctx, s.db, table, column)
}

// IndexExists reports whether table has an index named index.
func (s *Store) IndexExists(ctx context.Context, table, index string) (bool, error) {
	return s.dialect.indexExists(ctx, s.db, table, index)
}

// IsPartitioned reports whether table carries legacy partitioning.
func (s *Store) IsPartitioned(ctx context.Context, table string) (bool, error) {
	return s.dialect.isPartitioned(ctx, s.db, table)
}

// RemovePartitioning drops the partitioning of table.
func (s *Store) RemovePartitioning(ctx context.Context, table string) error {
	return s.dialect.removePartitioning(ctx, s.db, table)
}

// AddColumn adds a nullable column.
func (s *Store) AddColumn(ctx context.Context, table string, col types.ColumnSpec) error {
	q := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(table), quoteIdent(col.Name), s.dialect.columnType(col))
	_, err := s.db.ExecContext(ctx, q)
	return err
}

// CountNonNull counts rows where column is set.
func (s *Store) CountNonNull(ctx context.Context, table, column string) (int, error) {
	var n int
	q := fmt.Sprintf("SELECT COUNT(%s) FROM %s", quoteIdent(column), quoteIdent(table))
	err := s.db.QueryRowContext(ctx, q).Scan(&n)
	return n, err
}

// CountNull counts rows where column is NULL.
func (s *Store) CountNull(ctx context.Context, table, column string) (int, error) {
	var n int
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", quoteIdent(table), quoteIdent(column))
	err := s.db.QueryRowContext(ctx, q).Scan(&n)
	return n, err
}

// ClearColumn sets column to NULL on every row.
func (s *Store) ClearColumn(ctx context.Context, table, column string) error {
	q := fmt.Sprintf("UPDATE %s SET %s = NULL", quoteIdent(table), quoteIdent(column))
	_, err := s.db.ExecContext(ctx, q)
	return err
}

// SupportsVectorIndex reports whether the engine can build vector indexes.
func (s *Store) SupportsVectorIndex() bool {
	return s.dialect.supportsVectorIndex()
}

// CreateVectorIndex builds a cosine vector index on col.
func (s *Store) CreateVectorIndex(ctx context.Context, table, index string, col types.ColumnSpec) error {
	return s.dialect.createVectorIndex(ctx, s.db, table, index, col)
}

// AllowStatus makes sure an ENUM status column accepts value.
func (s *Store) AllowStatus(ctx context.Context, table, column, value string) error {
	return s.dialect.allowEnumValue(ctx, s.db, table, column, value)
}

func (s *Store) ensureStateTable(ctx context.Context) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.stateReady {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS vector_schema_state (
			table_name VARCHAR(64) NOT NULL,
			column_name VARCHAR(64) NOT NULL,
			dimensions INTEGER NOT NULL,
			guarded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (table_name, column_name)
		)
	`)
	if err != nil {
		return fmt.Errorf("create vector_schema_state: %w", err)
	}
	s.stateReady = true
	return nil
}

// GuardMarked reports whether the schema guard already owns table.column.
func (s *Store) GuardMarked(ctx context.Context, table, column string) (bool, error) {
	if err := s.ensureStateTable(ctx); err != nil {
		return false, err
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM vector_schema_state WHERE table_name = ? AND column_name = ?",
		table, column).Scan(&n)
	return n > 0, err
}

// MarkGuarded records that the schema guard owns table.column.
func (s *Store) MarkGuarded(ctx context.Context, table, column string, dims int) error {
	if err := s.ensureStateTable(ctx); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM vector_schema_state WHERE table_name = ? AND column_name = ?", table, column); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO vector_schema_state (table_name, column_name, dimensions) VALUES (?, ?, ?)",
		table, column, dims); err != nil {
		return err
	}
	return tx.Commit()
}
