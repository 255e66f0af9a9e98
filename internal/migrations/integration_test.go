//go:build integration

package migrations

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRunnerAppliesAndRollsBackAppSchema(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := startPostgres(t, ctx)
	runner := NewRunner()

	applied, err := runner.Up(ctx, db, 0)
	require.NoError(t, err, "runner.Up()")
	require.GreaterOrEqual(t, applied, 2)

	assertTableExists(t, db, "users", true)
	assertTableExists(t, db, "query_history", true)

	_, err = db.ExecContext(ctx, `INSERT INTO askql.query_history (user_id, prompt_text, sql_text, result) VALUES (0, 'q', 'SELECT 1', '{}')`)
	require.NoError(t, err, "anonymous history insert")

	again, err := runner.Up(ctx, db, 0)
	require.NoError(t, err, "second runner.Up()")
	require.Zero(t, again)

	statuses, err := runner.Status(ctx, db)
	require.NoError(t, err, "runner.Status()")
	for _, status := range statuses {
		require.True(t, status.Applied, "migration %d applied", status.Version)
	}

	rolledBack, err := runner.Down(ctx, db, len(statuses))
	require.NoError(t, err, "runner.Down()")
	require.Equal(t, len(statuses), rolledBack)

	assertTableExists(t, db, "users", false)
}

func startPostgres(t *testing.T, ctx context.Context) *sql.DB {
	t.Helper()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("askql"),
		postgres.WithUsername("askql"),
		postgres.WithPassword("askql"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()), "terminate postgres container")
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "postgres connection string")

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err, "sql.Open()")
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func assertTableExists(t *testing.T, db *sql.DB, table string, expected bool) {
	t.Helper()

	var count int
	query := `SELECT COUNT(*) FROM pg_tables WHERE schemaname = 'askql' AND tablename = $1`
	require.NoError(t, db.QueryRow(query, table).Scan(&count), "query table %q existence", table)
	require.Equal(t, expected, count > 0, "table %q exists", table)
}
