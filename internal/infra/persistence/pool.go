// Package persistence holds settings shared by the driver-specific openers.
package persistence

import (
	"time"

	"github.com/jmoiron/sqlx"
)

// Pool tunes the connection pool of an opened database. Zero values keep the
// database/sql defaults.
type Pool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Configure applies the pool settings to db.
func (p Pool) Configure(db *sqlx.DB) {
	if p.MaxOpenConns > 0 {
		db.SetMaxOpenConns(p.MaxOpenConns)
	}
	if p.MaxIdleConns > 0 {
		db.SetMaxIdleConns(p.MaxIdleConns)
	}
	if p.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(p.ConnMaxLifetime)
	}
}

// Options are accepted by every opener.
type Options struct {
	Pool Pool
	// SkipSchema leaves the schema untouched; the CLI's schema command applies it
	// explicitly.
	SkipSchema bool
}
