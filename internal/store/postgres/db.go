package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// Roles a pool can serve. The application role owns users and history, the
// query role runs translated statements, and the owner role migrates and seeds.
const (
	RoleApp   = "app"
	RoleQuery = "query"
	RoleOwner = "owner"
)

type DBConfig struct {
	DSN             string
	Role            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

func (c DBConfig) role() string {
	if role := strings.TrimSpace(c.Role); role != "" {
		return role
	}
	return RoleApp
}

// Open returns a pgx-backed pool for cfg.Role that has answered a ping.
// Sessions report application_name askql-<role> unless the DSN sets one.
func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	connConfig, err := parseConnConfig(cfg)
	if err != nil {
		return nil, err
	}
	db := stdlib.OpenDB(*connConfig)

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", cfg.role(), err)
	}
	return db, nil
}

func parseConnConfig(cfg DBConfig) (*pgx.ConnConfig, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("%s db dsn is required", cfg.role())
	}
	connConfig, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse %s db dsn: %w", cfg.role(), err)
	}
	if connConfig.RuntimeParams == nil {
		connConfig.RuntimeParams = map[string]string{}
	}
	if connConfig.RuntimeParams["application_name"] == "" {
		connConfig.RuntimeParams["application_name"] = "askql-" + cfg.role()
	}
	return connConfig, nil
}
