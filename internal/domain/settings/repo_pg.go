package settings

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dsuarezmarra/clinic-sub001/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *repoPG) Get(ctx context.Context, key string) (*Setting, error) {
	var s Setting
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT key, value, updated_at FROM configuration WHERE key = $1`, key).
		Scan(&s.Key, &s.Value, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) Set(ctx context.Context, key, value string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO configuration (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, value)
	return err
}

func (r *repoPG) List(ctx context.Context) ([]*Setting, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT key, value, updated_at FROM configuration ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, &s)
	}
	return items, nil
}

func (r *repoPG) Delete(ctx context.Context, key string) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM configuration WHERE key = $1`, key)
	return err
}
