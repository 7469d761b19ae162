package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// QueryError reports a failed statement. It covers constraint violations,
// connectivity errors and malformed SQL alike.
type QueryError struct {
	Op    string
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: query failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Executor runs parameterized statements against a database or an open transaction.
// Statements use ? placeholders and are rebound for the active driver.
type Executor struct {
	ext     sqlx.ExtContext
	dialect Dialect
}

// NewExecutor wraps ext, which may be a *sqlx.DB or a *sqlx.Tx.
func NewExecutor(ext sqlx.ExtContext, dialect Dialect) *Executor {
	return &Executor{ext: ext, dialect: dialect}
}

// Dialect returns the dialect the executor was built for.
func (e *Executor) Dialect() Dialect {
	return e.dialect
}

// Statements is shorthand for e.Dialect().Statements.
func (e *Executor) Statements() Statements {
	return e.dialect.Statements
}

// Run executes a statement that returns no rows.
func (e *Executor) Run(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := e.ext.ExecContext(ctx, e.ext.Rebind(query), args...)
	if err != nil {
		return nil, &QueryError{Query: query, Err: err}
	}
	return res, nil
}

// Get scans a single row into dest. sql.ErrNoRows is returned as is.
func (e *Executor) Get(ctx context.Context, dest any, query string, args ...any) error {
	err := sqlx.GetContext(ctx, e.ext, dest, e.ext.Rebind(query), args...)
	if err == nil || errors.Is(err, sql.ErrNoRows) {
		return err
	}
	return &QueryError{Query: query, Err: err}
}

// All scans every row into dest, which must be a pointer to a slice.
func (e *Executor) All(ctx context.Context, dest any, query string, args ...any) error {
	if err := sqlx.SelectContext(ctx, e.ext, dest, e.ext.Rebind(query), args...); err != nil {
		return &QueryError{Query: query, Err: err}
	}
	return nil
}
