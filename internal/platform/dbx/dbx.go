// Package dbx provides the PostgreSQL connection pool and the transaction
// helper every repository in the core is built on.
package dbx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tolvera-hq/saborpos/internal/platform/logging"
	"github.com/tolvera-hq/saborpos/internal/tenantctx"
)

// DB wraps a pgx pool with the tenant-aware transaction helper every
// service in the core uses instead of touching *pgxpool.Pool directly.
type DB struct {
	pool      *pgxpool.Pool
	log       *logging.Logger
	enableRLS bool
}

// Config configures the pool.
type Config struct {
	DSN             string
	MaxConns        int32
	ConnMaxLifetime time.Duration
	EnableRLS       bool
}

// Open creates and pings a new connection pool.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{
		pool:      pool,
		log:       logging.GetDefault().Component("dbx"),
		enableRLS: cfg.EnableRLS,
	}, nil
}

// Close closes the pool.
func (d *DB) Close() { d.pool.Close() }

// Pool returns the underlying pool for read-only repository queries that
// don't need an explicit transaction.
func (d *DB) Pool() *pgxpool.Pool { return d.pool }

// TxFunc is a unit of work run inside a single transaction.
type TxFunc func(ctx context.Context, tx pgx.Tx) error

// WithTx runs fn inside a transaction. When RLS is enabled and the context
// carries a tenant, it issues `SET LOCAL app.tenant_id` as the first
// statement so row-level security policies can predicate on it; the
// application-level tenant check in every repository remains authoritative
// regardless (§4.1).
func (d *DB) WithTx(ctx context.Context, fn TxFunc) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if d.enableRLS {
		if tenantID, ok := tenantctx.TenantID(ctx); ok {
			if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID.String()); err != nil {
				return fmt.Errorf("set rls tenant: %w", err)
			}
		}
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// WithRetryableTx runs fn inside a transaction, retrying up to maxRetries
// times on a serialization/conflict failure. Only operations the caller has
// declared idempotent (payments with an idempotency key, printer dispatch)
// should use this instead of WithTx (§4.9).
func (d *DB) WithRetryableTx(ctx context.Context, maxRetries int, fn TxFunc) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = d.WithTx(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
		d.log.Warn("retrying transaction after conflict", "attempt", attempt+1, "error", lastErr)
		time.Sleep(backoff(attempt))
	}
	return lastErr
}

func backoff(attempt int) time.Duration {
	base := 10 * time.Millisecond
	return base * time.Duration(1<<uint(attempt))
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true
		}
	}
	return false
}
