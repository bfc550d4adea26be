// Package mysql opens a MySQL database through go-sql-driver/mysql and applies
// the irrigation schema on startup.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	drv "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"irrigation/internal/entitymodel/sqlbundle"
	"irrigation/internal/infra/persistence"
)

// DriverName is the database/sql name registered by go-sql-driver/mysql.
const DriverName = "mysql"

const defaultDSN = "root@tcp(127.0.0.1:3306)/irrigation"

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// NormalizeDSN parses dsn and forces the settings the repositories rely on:
// DATETIME columns scan into time.Time in UTC, and UPDATE reports matched rows
// rather than changed rows.
func NormalizeDSN(dsn string) (string, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	cfg, err := drv.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.MultiStatements = false
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

// Open connects using dsn, verifies the server is reachable and applies the
// schema unless opts.SkipSchema is set.
func Open(ctx context.Context, dsn string, opts persistence.Options) (*sqlx.DB, error) {
	normalized, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	openMu.Lock()
	raw, err := sqlOpen(DriverName, normalized)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db := sqlx.NewDb(raw, DriverName)
	opts.Pool.Configure(db)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	if !opts.SkipSchema {
		if err := ApplySchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

// ApplySchema creates any missing tables.
func ApplySchema(ctx context.Context, db sqlbundle.Execer) error {
	if err := sqlbundle.Apply(ctx, db, sqlbundle.MySQL()); err != nil {
		return fmt.Errorf("apply mysql schema: %w", err)
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
