package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/anysoft/askql/internal/config"
	"github.com/anysoft/askql/internal/demo/seed"
	"github.com/anysoft/askql/internal/observability"
	duckdbengine "github.com/anysoft/askql/internal/query/duckdb"
	storepostgres "github.com/anysoft/askql/internal/store/postgres"
)

func main() {
	if err := config.LoadDotEnv(strings.TrimSpace(os.Getenv("ASKQL_ENV_FILE"))); err != nil {
		slog.Error("failed to load env file", slog.Any("error", err))
		os.Exit(1)
	}
	seedDefaults, err := seed.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		slog.Error("failed to load seed config", slog.Any("error", err))
		os.Exit(1)
	}
	customers := flag.Int("customers", seedDefaults.Customers, "number of customers to generate")
	randomSeed := flag.Int64("seed", seedDefaults.Seed, "random seed; the same seed yields the same dataset")
	reset := flag.Bool("reset", seedDefaults.Reset, "drop and recreate the demo tables first")
	flag.Parse()

	cfg, err := config.LoadFromEnv("askql-seed")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	switch cfg.Store.Driver {
	case config.DriverDuckDB:
		db, err = duckdbengine.Open(ctx, cfg.Store.DuckDBPath, false)
	default:
		// Seeding writes, so it always uses the owner DSN rather than the query DSN.
		db, err = storepostgres.Open(ctx, storepostgres.DBConfig{DSN: cfg.Store.DSN, Role: storepostgres.RoleOwner, MaxOpenConns: 2})
	}
	if err != nil {
		logger.Error("failed to open data store", slog.String("driver", cfg.Store.Driver), slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	loader, err := seed.NewLoader(db, cfg.Store.DataSchema, logger)
	if err != nil {
		logger.Error("failed to initialize seed loader", slog.Any("error", err))
		os.Exit(1)
	}

	seedCfg := seedDefaults
	seedCfg.Customers = *customers
	seedCfg.Seed = *randomSeed
	seedCfg.Reset = *reset
	if _, err := loader.Seed(ctx, seedCfg); err != nil {
		logger.Error("seed failed", slog.Any("error", err))
		os.Exit(1)
	}
}
