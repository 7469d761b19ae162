// Package store owns the database connection and the query executor used by
// the data access layer.
package store

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Options configures Open.
type Options struct {
	// Driver selects the dialect: "sqlite" (default) or "postgres".
	Driver string
	// DSN is a file path for SQLite or a connection URL for Postgres.
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	BusyTimeout  time.Duration
}

// DB wraps the connection pool together with its dialect.
type DB struct {
	*sqlx.DB
	dialect Dialect
}

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, opts Options) (*DB, error) {
	dialect, err := LookupDialect(opts.Driver)
	if err != nil {
		return nil, err
	}

	dsn := opts.DSN
	if dialect.Name == DialectSQLite {
		if dsn, err = sqliteDSN(opts.DSN, opts.BusyTimeout); err != nil {
			return nil, err
		}
	}

	conn, err := sqlx.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(opts.MaxIdleConns)
	}

	log.Debug().Str("dialect", dialect.Name).Msg("Database connection established")
	return &DB{DB: conn, dialect: dialect}, nil
}

// Dialect returns the dialect in use.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Executor returns an executor bound to the pool.
func (db *DB) Executor() *Executor {
	return NewExecutor(db.DB, db.dialect)
}

// Transaction runs fn inside a transaction, committing when fn returns nil.
func (db *DB) Transaction(ctx context.Context, fn func(*Executor) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(NewExecutor(tx, db.dialect)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("Failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// sqliteDSN builds a modernc DSN with WAL, a busy timeout and immediate
// write transactions so concurrent writers wait instead of failing.
func sqliteDSN(path string, busy time.Duration) (string, error) {
	if path == "" {
		return "", fmt.Errorf("sqlite path is required")
	}
	if busy <= 0 {
		busy = 5 * time.Second
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode(), nil
}
