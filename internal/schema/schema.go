package schema

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anysoft/askql/internal/observability"
)

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Snapshot is the set of tables visible to the translator at one point in time.
type Snapshot struct {
	Tables []Table `json:"tables"`
}

func (s Snapshot) Empty() bool {
	return len(s.Tables) == 0
}

// Render formats the snapshot as one "Table name: col (type), ..." line per table.
func (s Snapshot) Render() string {
	lines := make([]string, 0, len(s.Tables))
	for _, table := range s.Tables {
		columns := make([]string, 0, len(table.Columns))
		for _, column := range table.Columns {
			columns = append(columns, fmt.Sprintf("%s (%s)", column.Name, column.Type))
		}
		lines = append(lines, fmt.Sprintf("Table %s: %s", table.Name, strings.Join(columns, ", ")))
	}
	return strings.Join(lines, "\n")
}

// Builder introspects one schema of the data store through information_schema,
// which PostgreSQL and DuckDB both expose.
type Builder struct {
	DB      *sql.DB
	Schema  string
	Exclude []string
	Logger  *slog.Logger
}

// Build returns the current snapshot. Introspection failures are logged and
// yield an empty snapshot so translation can still proceed.
func (b *Builder) Build(ctx context.Context) Snapshot {
	snapshot, err := b.Introspect(ctx)
	if err != nil {
		observability.IncrementSchemaIntrospectionFailure()
		b.logger().WarnContext(ctx, "schema introspection failed", slog.String("schema", b.Schema), slog.Any("error", err))
		return Snapshot{}
	}
	return snapshot
}

// Introspect is Build without the failure fallback.
func (b *Builder) Introspect(ctx context.Context) (Snapshot, error) {
	if b.DB == nil {
		return Snapshot{}, fmt.Errorf("schema db is required")
	}
	tableNames, err := b.listTables(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	columns, err := b.listColumns(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	excluded := make(map[string]struct{}, len(b.Exclude))
	for _, name := range b.Exclude {
		excluded[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}

	snapshot := Snapshot{Tables: make([]Table, 0, len(tableNames))}
	for _, name := range tableNames {
		if _, skip := excluded[strings.ToLower(name)]; skip {
			continue
		}
		snapshot.Tables = append(snapshot.Tables, Table{Name: name, Columns: columns[name]})
	}
	return snapshot, nil
}

func (b *Builder) listTables(ctx context.Context) ([]string, error) {
	rows, err := b.DB.QueryContext(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = $1 AND table_type = 'BASE TABLE'`, b.schemaName())
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return names, nil
}

func (b *Builder) listColumns(ctx context.Context) (map[string][]Column, error) {
	rows, err := b.DB.QueryContext(ctx, `
SELECT table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema = $1
ORDER BY table_name, ordinal_position`, b.schemaName())
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns := make(map[string][]Column)
	for rows.Next() {
		var tableName string
		var column Column
		if err := rows.Scan(&tableName, &column.Name, &column.Type); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns[tableName] = append(columns[tableName], column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return columns, nil
}

func (b *Builder) schemaName() string {
	if strings.TrimSpace(b.Schema) == "" {
		return "public"
	}
	return b.Schema
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger == nil {
		return observability.NopLogger()
	}
	return b.Logger
}
