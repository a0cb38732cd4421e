// Package relational implements the relational side of aethersync on
// MariaDB (go-sql-driver/mysql) or SQLite with the sqlite-vec extension.
package relational

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sethvargo/go-retry"

	"github.com/spetr/aethersync/pkg/provider"
	"github.com/spetr/aethersync/pkg/types"
)

var (
	// Ensure sqlite-vec Auto() is called exactly once before any db connection
	vecAutoOnce sync.Once
)

// Options describes how to reach the relational store.
type Options struct {
	Driver   string // "mysql" or "sqlite"
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Path     string // sqlite file
	Params   map[string]string

	ConnectRetries int           // attempts after the first failure
	ConnectBackoff time.Duration // base of the Fibonacci backoff
}

// Store implements the relational store interfaces over database/sql.
type Store struct {
	db      *sql.DB
	dialect dialect

	stateMu    sync.Mutex
	stateReady bool // vector_schema_state exists
}

// Compile-time interface checks.
var (
	_ provider.ProfileSource = (*Store)(nil)
	_ provider.VectorWriter  = (*Store)(nil)
	_ provider.StatsReader   = (*Store)(nil)
	_ provider.SchemaCatalog = (*Store)(nil)
	_ provider.QueueStore    = (*Store)(nil)
	_ provider.Searcher      = (*Store)(nil)
)

// Open connects to the configured store, retrying with Fibonacci backoff.
// A store that stays unreachable yields a *types.ConnectionError.
func Open(ctx context.Context, opts Options) (*Store, error) {
	var (
		driver, dsn string
		d           dialect
	)
	switch opts.Driver {
	case "mysql", "mariadb", "":
		driver, dsn, d = "mysql", MySQLDSN(opts), mysqlDialect{}
	case "sqlite", "sqlite3":
		path, err := prepareSQLite(opts.Path)
		if err != nil {
			return nil, &types.ConnectionError{Target: "sqlite", Err: err}
		}
		driver, dsn, d = "sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", sqliteDialect{}
	default:
		return nil, fmt.Errorf("%w: unknown relational driver %q", types.ErrInvalidConfig, opts.Driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, &types.ConnectionError{Target: d.name(), Err: err}
	}

	if err := ping(ctx, db, d, opts); err != nil {
		db.Close()
		return nil, &types.ConnectionError{Target: d.name(), Err: err}
	}

	if d.name() == "sqlite" {
		// One writer at a time; avoids SQLITE_BUSY between batch and claim updates.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "SELECT vec_version()"); err != nil {
			db.Close()
			return nil, &types.ConnectionError{Target: "sqlite", Err: fmt.Errorf("sqlite-vec extension not available: %w", err)}
		}
	}

	slog.Debug("relational store connected", "driver", d.name())
	return &Store{db: db, dialect: d}, nil
}

func ping(ctx context.Context, db *sql.DB, d dialect, opts Options) error {
	retries := opts.ConnectRetries
	if retries <= 0 {
		retries = 3
	}
	base := opts.ConnectBackoff
	if base <= 0 {
		base = 500 * time.Millisecond
	}

	b := retry.WithMaxRetries(uint64(retries), retry.NewFibonacci(base))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			slog.Warn("relational store not reachable, retrying", "driver", d.name(), "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

// prepareSQLite registers sqlite-vec and makes sure the directory exists.
func prepareSQLite(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("sqlite path is empty")
	}

	// Register sqlite-vec extension before opening any database connection.
	vecAutoOnce.Do(func() {
		sqlite_vec.Auto()
	})

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	return path, nil
}

// MySQLDSN renders opts as a go-sql-driver/mysql DSN.
func MySQLDSN(opts Options) string {
	cfg := mysql.NewConfig()
	cfg.User = opts.User
	cfg.Passwd = opts.Password
	cfg.Net = "tcp"
	port := opts.Port
	if port == 0 {
		port = 3306
	}
	host := opts.Host
	if host == "" {
		host = "localhost"
	}
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	cfg.DBName = opts.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if len(opts.Params) > 0 {
		cfg.Params = make(map[string]string, len(opts.Params))
		for k, v := range opts.Params {
			cfg.Params[k] = v
		}
	}
	return cfg.FormatDSN()
}

// Driver returns the dialect name ("mysql" or "sqlite").
func (s *Store) Driver() string {
	return s.dialect.name()
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases resources and closes connections.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func persistErr(op string, err error) error {
	return &types.PersistenceError{Store: "relational", Op: op, Err: err}
}
