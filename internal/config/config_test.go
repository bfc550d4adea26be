package config

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadFrom(lookupMap(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("defaults changed (-want +got):\n%s", diff)
	}
	level, err := cfg.Database.IsolationLevel()
	if err != nil || level != sql.LevelDefault {
		t.Fatalf("sqlite isolation = %v %v", level, err)
	}
	if cfg.Database.DSN() != "irrigation.db" {
		t.Fatalf("dsn = %s", cfg.Database.DSN())
	}
}

func TestEnvOverrides(t *testing.T) {
	cfg, err := LoadFrom(lookupMap(map[string]string{
		"IRRIGATION_STORAGE_DRIVER":       "Postgres",
		"IRRIGATION_POSTGRES_DSN":         "postgres://db/irrigation",
		"IRRIGATION_DB_MAX_OPEN_CONNS":    "8",
		"IRRIGATION_DB_CONN_MAX_LIFETIME": "5m",
		"IRRIGATION_LOG_LEVEL":            "debug",
		"IRRIGATION_BLOB_DRIVER":          "s3",
		"IRRIGATION_BLOB_S3_BUCKET":       "reports",
		"IRRIGATION_BLOB_S3_PATH_STYLE":   "true",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Driver != StoragePostgres || cfg.Database.DSN() != "postgres://db/irrigation" {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if cfg.Database.MaxOpenConns != 8 || cfg.Database.ConnMaxLifetime != 5*time.Minute {
		t.Fatalf("pool = %+v", cfg.Database)
	}
	level, _ := cfg.Database.IsolationLevel()
	if level != sql.LevelReadCommitted {
		t.Fatalf("server databases default to read committed, got %v", level)
	}
	if !cfg.Blob.S3.PathStyle || cfg.Blob.S3.Bucket != "reports" {
		t.Fatalf("blob = %+v", cfg.Blob)
	}
}

func TestYAMLFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "irrigation.yaml")
	yamlDoc := `
database:
  driver: mysql
  mysql_dsn: "u:p@tcp(db:3306)/farm"
  isolation: serializable
log:
  level: warn
  format: console
blob:
  driver: fs
  fs_root: /var/lib/irrigation/reports
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadFrom(lookupMap(map[string]string{
		"IRRIGATION_CONFIG":    path,
		"IRRIGATION_LOG_LEVEL": "error",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Driver != StorageMySQL || cfg.Database.DSN() != "u:p@tcp(db:3306)/farm" {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if level, _ := cfg.Database.IsolationLevel(); level != sql.LevelSerializable {
		t.Fatalf("isolation = %v", level)
	}
	if cfg.Log.Level != "error" || cfg.Log.Format != "console" {
		t.Fatalf("env must win over file: %+v", cfg.Log)
	}
	if cfg.Blob.Driver != "fs" || cfg.Blob.FSRoot != "/var/lib/irrigation/reports" {
		t.Fatalf("blob = %+v", cfg.Blob)
	}
}

func TestInvalidSettings(t *testing.T) {
	cases := map[string]map[string]string{
		"driver":     {"IRRIGATION_STORAGE_DRIVER": "oracle"},
		"isolation":  {"IRRIGATION_ISOLATION": "chaos"},
		"pool":       {"IRRIGATION_DB_MAX_OPEN_CONNS": "many"},
		"lifetime":   {"IRRIGATION_DB_CONN_MAX_LIFETIME": "forever"},
		"blob":       {"IRRIGATION_BLOB_DRIVER": "gcs"},
		"bucket":     {"IRRIGATION_BLOB_DRIVER": "s3"},
		"path style": {"IRRIGATION_BLOB_S3_PATH_STYLE": "sometimes"},
		"file":       {"IRRIGATION_CONFIG": "/nonexistent/irrigation.yaml"},
	}
	for name, env := range cases {
		if _, err := LoadFrom(lookupMap(env)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLogBuild(t *testing.T) {
	logger, err := Log{Level: "debug", Format: "console"}.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !logger.Core().Enabled(-1) {
		t.Fatal("debug level not enabled")
	}
	if _, err := (Log{Level: "loud"}).Build(); err == nil {
		t.Fatal("expected level error")
	}
	if _, err := (Log{Format: "xml"}).Build(); err == nil {
		t.Fatal("expected format error")
	}
}
