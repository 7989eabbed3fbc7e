// Package db persists engine output to PostgreSQL. Repositories accept a DBTX
// so the same code runs against *pgxpool.Pool or inside a pgx.Tx. The engine
// only ever writes; reads exist for inspection and tests.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"sensorpulse/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Schema creates the three write-only tables. Statements are idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS predictions (
		id          TEXT PRIMARY KEY,
		kind        TEXT NOT NULL,
		title       TEXT NOT NULL,
		description TEXT NOT NULL,
		confidence  DOUBLE PRECISION NOT NULL,
		parameters  JSONB NOT NULL DEFAULT '{}'::jsonb,
		suggestions JSONB NOT NULL DEFAULT '[]'::jsonb,
		valid_until TIMESTAMPTZ NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS insights (
		id                BIGSERIAL PRIMARY KEY,
		kind              TEXT NOT NULL,
		priority          TEXT NOT NULL,
		message           TEXT NOT NULL,
		action_suggestion TEXT NOT NULL,
		rationale         TEXT NOT NULL,
		metadata          JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS feature_summaries (
		id           BIGSERIAL PRIMARY KEY,
		sensor_kind  TEXT NOT NULL,
		window_start TIMESTAMPTZ NOT NULL,
		window_end   TIMESTAMPTZ NOT NULL,
		sample_count INTEGER NOT NULL,
		payload      BYTEA NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS feature_summaries_kind_end_idx
		ON feature_summaries (sensor_kind, window_end DESC)`,
}

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, db DBTX) error {
	for i, stmt := range Schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return types.NewAppError(types.ErrCodeInternalDB,
				fmt.Sprintf("failed to apply schema statement %d", i), err)
		}
	}
	return nil
}

// PoolOptions tunes the pgx pool. Zero values keep the pgxpool defaults.
type PoolOptions struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration
}

// OpenPool connects to databaseURL and verifies the connection.
func OpenPool(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeConfigInvalid, "invalid database url", err)
	}
	if opts.MaxConns > 0 {
		poolCfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		poolCfg.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.HealthCheckPeriod > 0 {
		poolCfg.HealthCheckPeriod = opts.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamPersistence, "failed to create database pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, types.NewAppError(types.ErrCodeUpstreamPersistence, "database ping failed", err)
	}
	return pool, nil
}
