package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/anysoft/askql/internal/query"
)

// SQLSTATE query_canceled, raised when statement_timeout fires.
const queryCanceledCode = "57014"

// Engine runs generated statements inside a read-only transaction with a
// server-side statement timeout. Writes are refused twice: by the statement
// classifier and by PostgreSQL itself.
type Engine struct {
	db     *sql.DB
	limits query.Limits
}

func NewEngine(db *sql.DB, limits query.Limits) *Engine {
	return &Engine{db: db, limits: limits}
}

func (e *Engine) HealthCheck(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping query db: %w", err)
	}
	return nil
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	rowLimit, timeout := e.limits.Resolve(request)
	statement, err := query.PrepareStatement(request.SQL, rowLimit)
	if err != nil {
		return query.Result{}, err
	}

	start := time.Now()
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tx, err := e.db.BeginTx(execCtx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		if ctx.Err() != nil {
			return query.Result{}, ctx.Err()
		}
		return query.Result{}, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(execCtx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeout.Milliseconds())); err != nil {
		return query.Result{}, fmt.Errorf("set statement timeout: %w", err)
	}

	rows, err := tx.QueryContext(execCtx, statement)
	if err != nil {
		return query.Result{}, executionFailure(execCtx, err)
	}
	defer func() { _ = rows.Close() }()

	result, err := query.Collect(rows, rowLimit)
	if err != nil {
		return query.Result{}, executionFailure(execCtx, err)
	}
	result.Duration = time.Since(start)
	return result, nil
}

func executionFailure(ctx context.Context, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == queryCanceledCode {
		return &query.ExecutionError{Code: query.CodeTimeout, Detail: "statement exceeded the time limit", Err: err}
	}
	return query.ExecutionFailure(ctx, err)
}
