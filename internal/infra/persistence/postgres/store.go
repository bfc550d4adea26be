// Package postgres opens a Postgres database through the pgx database/sql
// driver and applies the irrigation schema on startup.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/jmoiron/sqlx"

	"irrigation/internal/entitymodel/sqlbundle"
	"irrigation/internal/infra/persistence"
)

const (
	// DriverName is the database/sql name registered by pgx.
	DriverName = "pgx"
	defaultDSN = "postgres://localhost/irrigation?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Open connects using dsn (falls back to defaultDSN), verifies the server is
// reachable and applies the schema unless opts.SkipSchema is set. Statements
// written with '?' placeholders must go through the returned handle's Rebind.
func Open(ctx context.Context, dsn string, opts persistence.Options) (*sqlx.DB, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	raw, err := sqlOpen(DriverName, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db := sqlx.NewDb(raw, DriverName)
	opts.Pool.Configure(db)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if !opts.SkipSchema {
		if err := ApplySchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

// ApplySchema creates any missing tables and indexes.
func ApplySchema(ctx context.Context, db sqlbundle.Execer) error {
	if err := sqlbundle.Apply(ctx, db, sqlbundle.Postgres()); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
