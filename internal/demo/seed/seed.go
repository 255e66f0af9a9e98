package seed

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Summary reports what one Seed call wrote.
type Summary struct {
	Customers int
	Products  int
	Orders    int
	Skipped   bool
}

// Loader writes the demo dataset into a database/sql handle. The DDL and
// inserts are shared by the Postgres and DuckDB drivers.
type Loader struct {
	db     *sql.DB
	schema string
	log    *slog.Logger
}

func NewLoader(db *sql.DB, schema string, logger *slog.Logger) (*Loader, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loader{db: db, schema: strings.TrimSpace(schema), log: logger}, nil
}

// Seed creates the demo tables and loads a generated dataset. When the
// customers table already has rows and cfg.Reset is false it does nothing.
func (l *Loader) Seed(ctx context.Context, cfg Config) (Summary, error) {
	if err := cfg.Validate(); err != nil {
		return Summary{}, err
	}
	if cfg.Reset {
		if err := l.drop(ctx); err != nil {
			return Summary{}, err
		}
	}
	if err := l.create(ctx); err != nil {
		return Summary{}, err
	}

	var existing int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+l.table("customers")).Scan(&existing); err != nil {
		return Summary{}, fmt.Errorf("count customers: %w", err)
	}
	if existing > 0 {
		l.log.Info("demo data already present, skipping", slog.Int("customers", existing))
		return Summary{Skipped: true}, nil
	}

	dataset := NewGenerator(cfg.Seed).Generate(cfg.Customers)

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Summary{}, fmt.Errorf("begin seed tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	productRows := make([][]any, 0, len(dataset.Products))
	for _, product := range dataset.Products {
		productRows = append(productRows, []any{product.ID, product.Name, product.Category, product.LaunchDate})
	}
	if err := insertBatches(ctx, tx, l.table("products"), []string{"id", "name", "category", "launch_date"}, productRows, cfg.BatchSize); err != nil {
		return Summary{}, err
	}

	customerRows := make([][]any, 0, len(dataset.Customers))
	for _, customer := range dataset.Customers {
		customerRows = append(customerRows, []any{customer.ID, customer.Name, customer.Email, customer.State})
	}
	if err := insertBatches(ctx, tx, l.table("customers"), []string{"id", "name", "email", "state"}, customerRows, cfg.BatchSize); err != nil {
		return Summary{}, err
	}

	orderRows := make([][]any, 0, len(dataset.Orders))
	for _, order := range dataset.Orders {
		orderRows = append(orderRows, []any{order.ID, order.CustomerID, order.ProductID, order.OrderDate, order.Amount, order.Status})
	}
	if err := insertBatches(ctx, tx, l.table("orders"), []string{"id", "customer_id", "product_id", "order_date", "amount", "status"}, orderRows, cfg.BatchSize); err != nil {
		return Summary{}, err
	}

	if err := tx.Commit(); err != nil {
		return Summary{}, fmt.Errorf("commit seed tx: %w", err)
	}

	summary := Summary{
		Customers: len(dataset.Customers),
		Products:  len(dataset.Products),
		Orders:    len(dataset.Orders),
	}
	l.log.Info("seeded demo data",
		slog.String("schema", l.schema),
		slog.Int("customers", summary.Customers),
		slog.Int("products", summary.Products),
		slog.Int("orders", summary.Orders),
	)
	return summary, nil
}

func (l *Loader) create(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + l.table("customers") + ` (
	id BIGINT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	state TEXT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS ` + l.table("products") + ` (
	id BIGINT PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT NOT NULL,
	launch_date DATE NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS ` + l.table("orders") + ` (
	id BIGINT PRIMARY KEY,
	customer_id BIGINT NOT NULL REFERENCES ` + l.table("customers") + ` (id),
	product_id BIGINT NOT NULL REFERENCES ` + l.table("products") + ` (id),
	order_date DATE NOT NULL,
	amount DECIMAL(10, 2) NOT NULL,
	status TEXT NOT NULL
)`,
	}
	for _, statement := range statements {
		if _, err := l.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("create demo tables: %w", err)
		}
	}
	return nil
}

func (l *Loader) drop(ctx context.Context) error {
	for _, name := range []string{"orders", "products", "customers"} {
		if _, err := l.db.ExecContext(ctx, `DROP TABLE IF EXISTS `+l.table(name)); err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
	}
	l.log.Info("dropped demo tables", slog.String("schema", l.schema))
	return nil
}

func (l *Loader) table(name string) string {
	if l.schema == "" {
		return pgx.Identifier{name}.Sanitize()
	}
	return pgx.Identifier{l.schema, name}.Sanitize()
}

// insertBatches writes rows as multi-row INSERT statements of at most batchSize rows.
func insertBatches(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any, batchSize int) error {
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		batch := rows[start:end]

		var b strings.Builder
		b.WriteString("INSERT INTO " + table + " (" + strings.Join(columns, ", ") + ") VALUES ")
		args := make([]any, 0, len(batch)*len(columns))
		for i, row := range batch {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(")
			for j, value := range row {
				if j > 0 {
					b.WriteString(", ")
				}
				args = append(args, value)
				fmt.Fprintf(&b, "$%d", len(args))
			}
			b.WriteString(")")
		}
		if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}
	return nil
}
