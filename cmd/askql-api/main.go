package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anysoft/askql/internal/api"
	"github.com/anysoft/askql/internal/auth"
	"github.com/anysoft/askql/internal/config"
	"github.com/anysoft/askql/internal/history"
	"github.com/anysoft/askql/internal/migrations"
	"github.com/anysoft/askql/internal/nl2sql"
	"github.com/anysoft/askql/internal/observability"
	"github.com/anysoft/askql/internal/pipeline"
	"github.com/anysoft/askql/internal/query"
	duckdbengine "github.com/anysoft/askql/internal/query/duckdb"
	postgresengine "github.com/anysoft/askql/internal/query/postgres"
	"github.com/anysoft/askql/internal/schema"
	s3store "github.com/anysoft/askql/internal/storage/s3"
	storepostgres "github.com/anysoft/askql/internal/store/postgres"
	"github.com/anysoft/askql/internal/users"
)

type dataStore struct {
	db      *sql.DB
	engine  query.Engine
	health  func(ctx context.Context) error
	dialect string
}

func main() {
	if err := config.LoadDotEnv(strings.TrimSpace(os.Getenv("ASKQL_ENV_FILE"))); err != nil {
		slog.Error("failed to load env file", slog.Any("error", err))
		os.Exit(1)
	}
	cfg, err := config.LoadFromEnv("askql-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	ctx := context.Background()

	data, err := openDataStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open data store", slog.String("driver", cfg.Store.Driver), slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = data.db.Close() }()

	provider, err := newProvider(cfg.AI)
	if err != nil {
		logger.Error("failed to initialize language model provider", slog.Any("error", err))
		os.Exit(1)
	}
	translator, err := nl2sql.NewTranslator(provider, nl2sql.Config{
		Model:          cfg.AI.Model,
		Dialect:        data.dialect,
		MaxTokens:      cfg.AI.MaxTokens,
		FailurePolicy:  nl2sql.FailurePolicy(cfg.AI.FailurePolicy),
		MaxAttempts:    cfg.AI.MaxAttempts,
		RetryBaseDelay: cfg.AI.RetryBaseDelay,
		AttemptTimeout: cfg.AI.Timeout,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize translator", slog.Any("error", err))
		os.Exit(1)
	}

	tokens, err := auth.NewJWT(auth.JWTConfig{
		Secret: cfg.Auth.JWTSecret,
		TTL:    cfg.Auth.TokenTTL,
		Issuer: cfg.Auth.Issuer,
	})
	if err != nil {
		logger.Error("failed to initialize token issuer", slog.Any("error", err))
		os.Exit(1)
	}

	readiness := []api.ReadinessCheck{api.CheckStore(data.health)}
	deps := api.Dependencies{
		Logger:            logger,
		AuthMiddleware:    auth.Middleware(logger, tokens, cfg.Auth.Required),
		DependencyTimeout: 2 * time.Second,
		Tokens:            tokens,
	}

	// Users and history live in the application database. With the DuckDB
	// driver and ASKQL_STORE_DSN unset, both are disabled.
	var recorder pipeline.Recorder
	if cfg.Store.DSN != "" {
		appDB, err := storepostgres.Open(ctx, storepostgres.DBConfig{
			DSN:             cfg.Store.DSN,
			Role:            storepostgres.RoleApp,
			MaxOpenConns:    cfg.Store.MaxOpenConns,
			MaxIdleConns:    cfg.Store.MaxIdleConns,
			ConnMaxIdleTime: cfg.Store.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open application db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = appDB.Close() }()

		historyRepo := storepostgres.NewHistoryRepository(appDB)
		readiness = append(readiness, api.CheckStore(historyRepo.HealthCheck))

		var archive *history.Archive
		if cfg.History.ArchiveResults {
			objectStore, err := s3store.New(ctx, s3store.Config{
				Endpoint:         cfg.ObjectStore.Endpoint,
				Region:           cfg.ObjectStore.Region,
				Bucket:           cfg.ObjectStore.Bucket,
				AccessKeyID:      cfg.ObjectStore.AccessKeyID,
				SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
				UseSSL:           cfg.ObjectStore.UseSSL,
				Prefix:           cfg.ObjectStore.Prefix,
				AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
			})
			if err != nil {
				logger.Error("failed to initialize object store", slog.Any("error", err))
				os.Exit(1)
			}
			archive = history.NewArchive(objectStore)
			readiness = append(readiness, objectStore.HealthCheck)
		}

		historyRecorder := history.NewRecorder(historyRepo, archive, logger)
		recorder = historyRecorder
		deps.Archive = historyRecorder
		deps.Accounts = users.NewService(storepostgres.NewUserRepository(appDB))
	} else {
		logger.Warn("ASKQL_STORE_DSN is empty; history and accounts are disabled")
	}

	builder := &schema.Builder{
		DB:      data.db,
		Schema:  cfg.Store.DataSchema,
		Exclude: []string{migrations.TableName},
		Logger:  logger,
	}
	deps.Pipeline = pipeline.NewService(builder, translator, data.engine, recorder, logger)
	deps.Readiness = api.CombineReadinessChecks(readiness...)

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("driver", cfg.Store.Driver),
			slog.String("provider", provider.Name()),
			slog.String("failure_policy", cfg.AI.FailurePolicy),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func openDataStore(ctx context.Context, cfg config.Config) (dataStore, error) {
	limits := query.Limits{RowLimit: cfg.Query.RowLimit, Timeout: cfg.Query.Timeout}
	switch cfg.Store.Driver {
	case config.DriverDuckDB:
		db, err := duckdbengine.Open(ctx, cfg.Store.DuckDBPath, true)
		if err != nil {
			return dataStore{}, err
		}
		engine := duckdbengine.NewEngine(db, limits)
		return dataStore{db: db, engine: engine, health: engine.HealthCheck, dialect: "DuckDB"}, nil
	default:
		db, err := storepostgres.Open(ctx, storepostgres.DBConfig{
			DSN:             cfg.Store.EffectiveQueryDSN(),
			Role:            storepostgres.RoleQuery,
			MaxOpenConns:    cfg.Store.MaxOpenConns,
			MaxIdleConns:    cfg.Store.MaxIdleConns,
			ConnMaxIdleTime: cfg.Store.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
		})
		if err != nil {
			return dataStore{}, err
		}
		engine := postgresengine.NewEngine(db, limits)
		return dataStore{db: db, engine: engine, health: engine.HealthCheck, dialect: nl2sql.DefaultDialect}, nil
	}
}

func newProvider(cfg config.AIConfig) (nl2sql.Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAICompatible:
		return nl2sql.NewCompatibleProvider(nl2sql.CompatibleConfig{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey})
	default:
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("ASKQL_AI_API_KEY is required for provider %q", cfg.Provider)
		}
		return nl2sql.NewOpenAIProvider(nl2sql.OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL})
	}
}
