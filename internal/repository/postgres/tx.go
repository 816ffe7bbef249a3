package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cassiomorais/checkout/pkg/retry"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ctxKey int

const txKey ctxKey = iota

// SQLSTATE codes after which a transaction may simply be rerun.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// TxManager runs functions inside a transaction carried on the context.
type TxManager struct {
	pool  *pgxpool.Pool
	retry retry.Config
}

func NewTxManager(pool *pgxpool.Pool) *TxManager {
	cfg := retry.Quick()
	cfg.RetryIf = isRetryableTxError
	return &TxManager{pool: pool, retry: cfg}
}

// WithTransaction commits if fn returns nil and rolls back otherwise. A call
// made inside another transaction joins it. Serialization failures and
// deadlocks rerun fn from the start, so fn must not have effects outside
// the database that cannot be repeated.
func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey).(pgx.Tx); ok {
		return fn(ctx)
	}
	return retry.Do(ctx, m.retry, func() error {
		return m.run(ctx, fn)
	})
}

func (m *TxManager) run(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback failed (%v) after error: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ConnFromCtx returns the transaction on ctx, or the pool when there is none.
func ConnFromCtx(ctx context.Context, pool *pgxpool.Pool) DBTX {
	if tx, ok := ctx.Value(txKey).(pgx.Tx); ok {
		return tx
	}
	return pool
}

func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}
