package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/anysoft/askql/internal/query"
)

// Open opens a DuckDB database file. An empty path opens a private in-memory
// database. Read-only handles refuse every write at the engine level.
func Open(ctx context.Context, path string, readOnly bool) (*sql.DB, error) {
	dsn := strings.TrimSpace(path)
	if dsn != "" && !readOnly {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create duckdb directory: %w", err)
		}
	}
	if dsn != "" && readOnly {
		dsn += "?access_mode=READ_ONLY"
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if dsn == "" {
		// Each connection to "" is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return db, nil
}

type Engine struct {
	db     *sql.DB
	limits query.Limits
}

func NewEngine(db *sql.DB, limits query.Limits) *Engine {
	return &Engine{db: db, limits: limits}
}

func (e *Engine) HealthCheck(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping duckdb: %w", err)
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

	rows, err := e.db.QueryContext(execCtx, statement)
	if err != nil {
		return query.Result{}, query.ExecutionFailure(execCtx, err)
	}
	defer func() { _ = rows.Close() }()

	result, err := query.Collect(rows, rowLimit)
	if err != nil {
		return query.Result{}, query.ExecutionFailure(execCtx, err)
	}
	result.Duration = time.Since(start)
	return result, nil
}
