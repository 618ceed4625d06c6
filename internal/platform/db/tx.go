package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx shared by pools, connections and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type contextKey string

const txKey contextKey = "db_tx"

// ConnFromContext returns the transaction bound to ctx by WithTx, or nil.
func ConnFromContext(ctx context.Context) Querier {
	tx, _ := ctx.Value(txKey).(pgx.Tx)
	if tx == nil {
		return nil
	}
	return tx
}

// WithTx runs fn inside a transaction. Repositories that resolve their
// connection through ConnFromContext join it automatically. Nested calls reuse
// the outer transaction.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	if ConnFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// TxRunner runs fn inside a transaction. Services take one so tests can
// substitute RunDirect.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// Runner binds WithTx to pool.
func Runner(pool *pgxpool.Pool) TxRunner {
	return func(ctx context.Context, fn func(ctx context.Context) error) error {
		return WithTx(ctx, pool, fn)
	}
}

// RunDirect calls fn without a transaction.
func RunDirect(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
