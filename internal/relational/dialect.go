package relational

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/spetr/aethersync/pkg/types"
)

// dialect holds the SQL that differs between MariaDB and sqlite-vec.
type dialect interface {
	name() string

	// vectorParam wraps a "?" placeholder bound to an encoded vector literal.
	vectorParam() string

	// distance is the cosine distance between column and a vectorParam.
	distance(column string) string

	columnType(col types.ColumnSpec) string

	columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error)
	indexExists(ctx context.Context, db *sql.DB, table, index string) (bool, error)
	isPartitioned(ctx context.Context, db *sql.DB, table string) (bool, error)
	removePartitioning(ctx context.Context, db *sql.DB, table string) error

	supportsVectorIndex() bool
	createVectorIndex(ctx context.Context, db *sql.DB, table, index string, col types.ColumnSpec) error

	// allowEnumValue widens an ENUM column so it accepts value.
	allowEnumValue(ctx context.Context, db *sql.DB, table, column, value string) error
}

// mysqlDialect targets MariaDB 11.7+ with the native VECTOR type.
type mysqlDialect struct{}

func (mysqlDialect) name() string { return "mysql" }

func (mysqlDialect) vectorParam() string { return "VEC_FromText(?)" }

func (mysqlDialect) distance(column string) string {
	return fmt.Sprintf("VEC_DISTANCE_COSINE(%s, VEC_FromText(?))", column)
}

func (mysqlDialect) columnType(col types.ColumnSpec) string {
	switch col.Kind {
	case types.ColumnVector:
		return fmt.Sprintf("VECTOR(%d) NULL", col.Dims)
	case types.ColumnTimestamp:
		return "DATETIME(6) NULL"
	case types.ColumnInteger:
		return "BIGINT NULL"
	default:
		return "TEXT NULL"
	}
}

func (mysqlDialect) columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?
	`, table, column).Scan(&n)
	return n > 0, err
}

func (mysqlDialect) indexExists(ctx context.Context, db *sql.DB, table, index string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM INFORMATION_SCHEMA.STATISTICS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND INDEX_NAME = ?
	`, table, index).Scan(&n)
	return n > 0, err
}

func (mysqlDialect) isPartitioned(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM INFORMATION_SCHEMA.PARTITIONS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND PARTITION_NAME IS NOT NULL
	`, table).Scan(&n)
	return n > 0, err
}

func (mysqlDialect) removePartitioning(ctx context.Context, db *sql.DB, table string) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s REMOVE PARTITIONING", quoteIdent(table)))
	return err
}

func (mysqlDialect) supportsVectorIndex() bool { return true }

// createVectorIndex tightens the column to NOT NULL (MariaDB refuses vector
// indexes on nullable columns) and then builds the index.
func (d mysqlDialect) createVectorIndex(ctx context.Context, db *sql.DB, table, index string, col types.ColumnSpec) error {
	modify := fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s VECTOR(%d) NOT NULL",
		quoteIdent(table), quoteIdent(col.Name), col.Dims)
	if _, err := db.ExecContext(ctx, modify); err != nil {
		return fmt.Errorf("set NOT NULL: %w", err)
	}
	create := fmt.Sprintf("CREATE VECTOR INDEX %s ON %s (%s) DISTANCE=cosine",
		quoteIdent(index), quoteIdent(table), quoteIdent(col.Name))
	if _, err := db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create vector index: %w", err)
	}
	return nil
}

func (mysqlDialect) allowEnumValue(ctx context.Context, db *sql.DB, table, column, value string) error {
	var colType, nullable string
	var def sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT COLUMN_TYPE, IS_NULLABLE, COLUMN_DEFAULT FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?
	`, table, column).Scan(&colType, &nullable, &def)
	if err != nil {
		return err
	}

	lower := strings.ToLower(colType)
	if !strings.HasPrefix(lower, "enum(") || strings.Contains(colType, "'"+value+"'") {
		return nil
	}

	widened := strings.TrimSuffix(colType, ")") + ",'" + value + "')"
	stmt := fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s %s", quoteIdent(table), quoteIdent(column), widened)
	if nullable == "NO" {
		stmt += " NOT NULL"
	}
	if def.Valid {
		// MariaDB reports string defaults already quoted
		d := def.String
		if !strings.HasPrefix(d, "'") {
			d = "'" + d + "'"
		}
		stmt += " DEFAULT " + d
	}
	_, err = db.ExecContext(ctx, stmt)
	return err
}

// sqliteDialect targets SQLite with the sqlite-vec extension. Vectors are
// stored as float32 blobs produced by vec_f32.
type sqliteDialect struct{}

func (sqliteDialect) name() string { return "sqlite" }

func (sqliteDialect) vectorParam() string { return "vec_f32(?)" }

func (sqliteDialect) distance(column string) string {
	return fmt.Sprintf("vec_distance_cosine(%s, vec_f32(?))", column)
}

func (sqliteDialect) columnType(col types.ColumnSpec) string {
	switch col.Kind {
	case types.ColumnVector:
		return "BLOB"
	case types.ColumnTimestamp:
		return "TIMESTAMP"
	case types.ColumnInteger:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func (sqliteDialect) columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&n)
	return n > 0, err
}

func (sqliteDialect) indexExists(ctx context.Context, db *sql.DB, table, index string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND tbl_name = ? AND name = ?",
		table, index).Scan(&n)
	return n > 0, err
}

func (sqliteDialect) isPartitioned(ctx context.Context, db *sql.DB, table string) (bool, error) {
	return false, nil
}

func (sqliteDialect) removePartitioning(ctx context.Context, db *sql.DB, table string) error {
	return nil
}

func (sqliteDialect) supportsVectorIndex() bool { return false }

func (sqliteDialect) createVectorIndex(ctx context.Context, db *sql.DB, table, index string, col types.ColumnSpec) error {
	return fmt.Errorf("sqlite: vector indexes are not supported on plain tables")
}

// allowEnumValue is a no-op: SQLite has no ENUM type.
func (sqliteDialect) allowEnumValue(ctx context.Context, db *sql.DB, table, column, value string) error {
	return nil
}

// quoteIdent quotes a table or column name. Both dialects accept backticks.
func quoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}
