package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WithConn returns a child context carrying a tenant-scoped connection.
// Used outside the HTTP path (CLI commands) where TenantMiddleware has
// not pinned one.
func WithConn(ctx context.Context, conn *pgxpool.Conn) context.Context {
	return context.WithValue(ctx, DBConnKey, conn)
}

// RunInTx executes fn inside a transaction carried on the context.
// The transaction begins on the tenant connection when one is pinned,
// so it inherits the tenant's search_path; otherwise it begins on the
// pool. If a transaction is already active, fn joins it.
func RunInTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	var b beginner = pool
	if conn := ConnFromContext(ctx); conn != nil {
		b = conn
	}

	tx, err := b.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(WithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
