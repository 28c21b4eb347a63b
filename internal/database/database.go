package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
)

type DB struct {
	Pool *pgxpool.Pool
}

type Options struct {
	MaxConns int32
	MinConns int32
	// ConnectAttempts bounds the initial ping; the database container often
	// starts after the service.
	ConnectAttempts uint64
	RetryBase       time.Duration
}

func New(ctx context.Context, databaseURL string, opts Options) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	cfg.MaxConns = opts.MaxConns
	cfg.MinConns = opts.MinConns
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := ping(ctx, pool, opts); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("database connected", "max_conns", opts.MaxConns, "min_conns", opts.MinConns)
	return &DB{Pool: pool}, nil
}

func ping(ctx context.Context, pool *pgxpool.Pool, opts Options) error {
	attempts := opts.ConnectAttempts
	if attempts == 0 {
		attempts = 1
	}
	base := opts.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}

	backoff := retry.WithMaxRetries(attempts-1, retry.WithCappedDuration(10*time.Second, retry.NewExponential(base)))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := pool.Ping(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		slog.Warn("database not reachable yet", "attempt", attempt, "max_attempts", attempts, "error", err)
		return retry.RetryableError(err)
	})
}

func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
