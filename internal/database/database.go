package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

const applicationName = "compass-recycle-bin"

// PgxPool is the slice of *pgxpool.Pool the repositories use. pgxmock pools
// satisfy it too.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

type DB struct {
	Pool PgxPool
}

func New(ctx context.Context, databaseURL string, maxConns int32, minConns int32) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second
	if cfg.ConnConfig.RuntimeParams["application_name"] == "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	registerPoolMetrics(pool)
	slog.Info("database connected", "max_conns", maxConns, "min_conns", minConns)
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.Pool.Ping(ctx)
}

// registerPoolMetrics exports pool occupancy. A second pool in the same
// process (integration tests) keeps the first registration.
func registerPoolMetrics(pool *pgxpool.Pool) {
	gauges := []struct {
		name string
		help string
		read func(*pgxpool.Stat) int32
	}{
		{"compass_db_pool_acquired_conns", "Connections currently checked out of the pool", (*pgxpool.Stat).AcquiredConns},
		{"compass_db_pool_idle_conns", "Idle connections held by the pool", (*pgxpool.Stat).IdleConns},
		{"compass_db_pool_total_conns", "All connections held by the pool", (*pgxpool.Stat).TotalConns},
	}

	for _, g := range gauges {
		read := g.read
		gauge := prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			func() float64 { return float64(read(pool.Stat())) },
		)
		if err := prometheus.Register(gauge); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				slog.Warn("register pool metric", "metric", g.name, "error", err)
			}
		}
	}
}
