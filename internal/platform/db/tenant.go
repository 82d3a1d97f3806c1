package db

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	TenantKey contextKey = "tenant_slug"
	DBConnKey contextKey = "db_conn"
	TxKey     contextKey = "db_tx"
)

var tenantSlugPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// TenantMiddleware resolves the tenant slug for the request, pins a pooled
// connection to the tenant's schema via search_path, and stores both in the
// request context. Every repository read/write goes through that connection,
// so all persistence is implicitly tenant-scoped.
func TenantMiddleware(pool *pgxpool.Pool, defaultTenant string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			slug := extractTenantSlug(c, defaultTenant)

			if !tenantSlugPattern.MatchString(slug) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant identifier")
			}

			ctx := c.Request().Context()
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			defer conn.Release()

			schema := fmt.Sprintf("tenant_%s", slug)
			_, err = conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", schema))
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "tenant resolution failed")
			}

			ctx = context.WithValue(ctx, TenantKey, slug)
			ctx = context.WithValue(ctx, DBConnKey, conn)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("tenant_slug", slug)

			return next(c)
		}
	}
}

func extractTenantSlug(c echo.Context, defaultTenant string) string {
	// 1. JWT claim (set by auth middleware)
	if slug, ok := c.Get("jwt_tenant_id").(string); ok && slug != "" {
		return slug
	}

	// 2. X-Tenant-Slug header
	if slug := c.Request().Header.Get("X-Tenant-Slug"); slug != "" {
		return slug
	}

	// 3. Query parameter
	if slug := c.QueryParam("tenant"); slug != "" {
		return slug
	}

	return defaultTenant
}

// ConnFromContext retrieves the tenant-scoped database connection from context.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

// TenantFromContext retrieves the tenant slug from context.
func TenantFromContext(ctx context.Context) string {
	slug, _ := ctx.Value(TenantKey).(string)
	return slug
}

// WithTx returns a child context carrying the given transaction. Repositories
// prefer the transaction over the tenant connection when both are present.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, TxKey, tx)
}

// TxFromContext retrieves the active transaction from context, if any.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(TxKey).(pgx.Tx)
	return tx
}

// CreateTenantSchema creates a new schema for a tenant and runs all migrations
// against it. If migrationsDir is empty, migrations are skipped.
func CreateTenantSchema(ctx context.Context, pool *pgxpool.Pool, slug string, migrationsDir string) error {
	if !tenantSlugPattern.MatchString(slug) {
		return fmt.Errorf("invalid tenant identifier: %s", slug)
	}

	schema := fmt.Sprintf("tenant_%s", slug)

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema))
	if err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}

	if migrationsDir != "" {
		migrator := NewMigrator(pool, migrationsDir)
		if _, err := migrator.Up(ctx, schema); err != nil {
			return fmt.Errorf("run migrations for %s: %w", schema, err)
		}
	}

	return nil
}
