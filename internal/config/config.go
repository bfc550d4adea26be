// Package config loads runtime settings from an optional YAML file overlaid by
// IRRIGATION_* environment variables.
//
//	IRRIGATION_CONFIG               path to a YAML file applied before the environment
//	IRRIGATION_STORAGE_DRIVER       sqlite|postgres|mysql (default sqlite)
//	IRRIGATION_SQLITE_PATH          sqlite file (default ./irrigation.db)
//	IRRIGATION_POSTGRES_DSN         postgres DSN when driver=postgres
//	IRRIGATION_MYSQL_DSN            mysql DSN when driver=mysql
//	IRRIGATION_ISOLATION            default|read_committed|repeatable_read|serializable
//	IRRIGATION_DB_MAX_OPEN_CONNS    pool size (0 keeps the driver default)
//	IRRIGATION_DB_CONN_MAX_LIFETIME duration such as 5m
//	IRRIGATION_LOG_LEVEL            debug|info|warn|error (default info)
//	IRRIGATION_LOG_FORMAT           json|console (default json)
//	IRRIGATION_BLOB_DRIVER          fs|s3|memory; empty disables report archiving
//	IRRIGATION_BLOB_FS_ROOT         archive directory when driver=fs
//	IRRIGATION_BLOB_S3_BUCKET       bucket when driver=s3
//	IRRIGATION_BLOB_S3_REGION       region (default us-east-1)
//	IRRIGATION_BLOB_S3_ENDPOINT     custom endpoint, e.g. MinIO
//	IRRIGATION_BLOB_S3_PATH_STYLE   true|false
package config

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageDriver identifies a relational backend.
type StorageDriver string

const (
	StorageSQLite   StorageDriver = "sqlite"
	StoragePostgres StorageDriver = "postgres"
	StorageMySQL    StorageDriver = "mysql"
)

// Config is the full runtime configuration.
type Config struct {
	Database Database `yaml:"database"`
	Log      Log      `yaml:"log"`
	Blob     Blob     `yaml:"blob"`
}

// Database selects the relational store and its pool.
type Database struct {
	Driver          StorageDriver `yaml:"driver"`
	SQLitePath      string        `yaml:"sqlite_path"`
	PostgresDSN     string        `yaml:"postgres_dsn"`
	MySQLDSN        string        `yaml:"mysql_dsn"`
	Isolation       string        `yaml:"isolation"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// Log configures the zap logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Blob configures the report archive.
type Blob struct {
	Driver string `yaml:"driver"`
	FSRoot string `yaml:"fs_root"`
	S3     S3     `yaml:"s3"`
}

// S3 holds bucket coordinates for the s3 blob driver.
type S3 struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Database: Database{Driver: StorageSQLite, SQLitePath: "irrigation.db"},
		Log:      Log{Level: "info", Format: "json"},
	}
}

// Load reads the process environment.
func Load() (Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom builds a Config from defaults, the YAML file named by
// IRRIGATION_CONFIG (if any), and finally the variables returned by lookup.
func LoadFrom(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path, ok := lookup("IRRIGATION_CONFIG"); ok && path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var driver string
	str("IRRIGATION_STORAGE_DRIVER", &driver)
	if driver != "" {
		c.Database.Driver = StorageDriver(strings.ToLower(driver))
	}
	str("IRRIGATION_SQLITE_PATH", &c.Database.SQLitePath)
	str("IRRIGATION_POSTGRES_DSN", &c.Database.PostgresDSN)
	str("IRRIGATION_MYSQL_DSN", &c.Database.MySQLDSN)
	str("IRRIGATION_ISOLATION", &c.Database.Isolation)
	str("IRRIGATION_LOG_LEVEL", &c.Log.Level)
	str("IRRIGATION_LOG_FORMAT", &c.Log.Format)
	str("IRRIGATION_BLOB_DRIVER", &c.Blob.Driver)
	str("IRRIGATION_BLOB_FS_ROOT", &c.Blob.FSRoot)
	str("IRRIGATION_BLOB_S3_BUCKET", &c.Blob.S3.Bucket)
	str("IRRIGATION_BLOB_S3_REGION", &c.Blob.S3.Region)
	str("IRRIGATION_BLOB_S3_ENDPOINT", &c.Blob.S3.Endpoint)

	if v, ok := lookup("IRRIGATION_DB_MAX_OPEN_CONNS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("IRRIGATION_DB_MAX_OPEN_CONNS: %w", err)
		}
		c.Database.MaxOpenConns = n
	}
	if v, ok := lookup("IRRIGATION_DB_CONN_MAX_LIFETIME"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("IRRIGATION_DB_CONN_MAX_LIFETIME: %w", err)
		}
		c.Database.ConnMaxLifetime = d
	}
	if v, ok := lookup("IRRIGATION_BLOB_S3_PATH_STYLE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("IRRIGATION_BLOB_S3_PATH_STYLE: %w", err)
		}
		c.Blob.S3.PathStyle = b
	}
	return nil
}

// Validate rejects unknown drivers and isolation names.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case StorageSQLite, StoragePostgres, StorageMySQL:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Database.Driver)
	}
	if _, err := c.Database.IsolationLevel(); err != nil {
		return err
	}
	switch c.Blob.Driver {
	case "", "fs", "s3", "memory":
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	if c.Blob.Driver == "s3" && c.Blob.S3.Bucket == "" {
		return fmt.Errorf("IRRIGATION_BLOB_S3_BUCKET required for s3 blob driver")
	}
	return nil
}

// IsolationLevel resolves the configured isolation. When unset, SQLite uses the
// driver default and the server databases use read committed.
func (d Database) IsolationLevel() (sql.IsolationLevel, error) {
	switch strings.ToLower(strings.ReplaceAll(d.Isolation, "-", "_")) {
	case "":
		if d.Driver == StorageSQLite {
			return sql.LevelDefault, nil
		}
		return sql.LevelReadCommitted, nil
	case "default":
		return sql.LevelDefault, nil
	case "read_committed":
		return sql.LevelReadCommitted, nil
	case "repeatable_read":
		return sql.LevelRepeatableRead, nil
	case "serializable":
		return sql.LevelSerializable, nil
	default:
		return sql.LevelDefault, fmt.Errorf("unknown isolation level %q", d.Isolation)
	}
}

// DSN returns the connection target for the selected driver.
func (d Database) DSN() string {
	switch d.Driver {
	case StoragePostgres:
		return d.PostgresDSN
	case StorageMySQL:
		return d.MySQLDSN
	default:
		return d.SQLitePath
	}
}
