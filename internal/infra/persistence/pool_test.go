package persistence

import (
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func TestPoolConfigure(t *testing.T) {
	raw, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	db := sqlx.NewDb(raw, "sqlmock")
	defer func() { _ = db.Close() }()

	Pool{MaxOpenConns: 7, MaxIdleConns: 3, ConnMaxLifetime: time.Minute}.Configure(db)
	if got := db.Stats().MaxOpenConnections; got != 7 {
		t.Fatalf("max open = %d", got)
	}

	Pool{}.Configure(db)
	if got := db.Stats().MaxOpenConnections; got != 7 {
		t.Fatalf("zero pool must keep previous settings, got %d", got)
	}
}
