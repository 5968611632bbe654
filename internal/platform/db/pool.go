package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig carries the connection-pool settings the service exposes
// through its configuration. Zero lifetime values fall back to defaults
// suited to a long-running queue server sitting behind a clinic dashboard.
type PoolConfig struct {
	URL               string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration
}

const (
	defaultConnLifetime      = time.Hour
	defaultHealthCheckPeriod = time.Minute
)

// NewPool opens a pgx pool from cfg and verifies connectivity with a ping
// before handing it to the caller, so wiring fails fast on a bad URL.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	if pc.MaxConnLifetime == 0 {
		pc.MaxConnLifetime = defaultConnLifetime
	}
	pc.HealthCheckPeriod = cfg.HealthCheckPeriod
	if pc.HealthCheckPeriod == 0 {
		pc.HealthCheckPeriod = defaultHealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
