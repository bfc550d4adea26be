// Package sqlite opens the embedded SQLite store used by default and in tests.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"irrigation/internal/entitymodel/sqlbundle"
	"irrigation/internal/infra/persistence"
)

// DriverName is the database/sql name registered by modernc.org/sqlite.
const DriverName = "sqlite"

const defaultPath = "irrigation.db"

func init() {
	sqlx.BindDriver(DriverName, sqlx.QUESTION)
}

// DSN builds the connection string for path. Every pooled connection enforces
// foreign keys, waits on locks instead of failing, and takes the write lock
// when a transaction begins.
func DSN(path string) string {
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
}

// Open opens (creating if needed) the SQLite database at path and applies the
// schema unless opts.SkipSchema is set.
func Open(ctx context.Context, path string, opts persistence.Options) (*sqlx.DB, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sqlx.Open(DriverName, DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	opts.Pool.Configure(db)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
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
	if err := sqlbundle.Apply(ctx, db, sqlbundle.SQLite()); err != nil {
		return fmt.Errorf("apply sqlite schema: %w", err)
	}
	return nil
}
