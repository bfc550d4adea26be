package core

import (
	"context"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"irrigation/internal/blob"
	"irrigation/internal/config"
	"irrigation/internal/infra/persistence"
	"irrigation/internal/infra/persistence/mysql"
	"irrigation/internal/infra/persistence/postgres"
	"irrigation/internal/infra/persistence/sqlite"
	"irrigation/internal/txn"
	"irrigation/pkg/domain"
)

// OpenDatabase opens the relational store selected by cfg. The schema is
// applied unless skipSchema is set.
func OpenDatabase(ctx context.Context, cfg config.Database, skipSchema bool) (*sqlx.DB, error) {
	opts := persistence.Options{
		Pool: persistence.Pool{
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		},
		SkipSchema: skipSchema,
	}
	switch cfg.Driver {
	case config.StorageSQLite, "":
		return sqlite.Open(ctx, cfg.SQLitePath, opts)
	case config.StoragePostgres:
		return postgres.Open(ctx, cfg.PostgresDSN, opts)
	case config.StorageMySQL:
		return mysql.Open(ctx, cfg.MySQLDSN, opts)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// ApplySchema creates the tables of the selected driver on db.
func ApplySchema(ctx context.Context, db *sqlx.DB, driver config.StorageDriver) error {
	switch driver {
	case config.StorageSQLite, "":
		return sqlite.ApplySchema(ctx, db)
	case config.StoragePostgres:
		return postgres.ApplySchema(ctx, db)
	case config.StorageMySQL:
		return mysql.ApplySchema(ctx, db)
	default:
		return fmt.Errorf("unknown storage driver %q", driver)
	}
}

// Runtime bundles the components built from a Config.
type Runtime struct {
	DB      *sqlx.DB
	Service *Service
	Tracer  *JSONTraceTracer
}

// Close releases the database pool.
func (r *Runtime) Close() error { return r.DB.Close() }

// RuntimeOptions adjusts Bootstrap.
type RuntimeOptions struct {
	Logger     *zap.Logger
	Registerer prometheus.Registerer
	// TraceWriter, when set, receives one JSON line per service operation.
	TraceWriter io.Writer
	// Calculator replaces the default daily water calculator.
	Calculator domain.WaterCalculator
	SkipSchema bool
}

// Bootstrap opens the database and blob store described by cfg and wires the
// coordinator and service over them.
func Bootstrap(ctx context.Context, cfg config.Config, opts RuntimeOptions) (*Runtime, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	isolation, err := cfg.Database.IsolationLevel()
	if err != nil {
		return nil, err
	}
	db, err := OpenDatabase(ctx, cfg.Database, opts.SkipSchema)
	if err != nil {
		return nil, err
	}
	coord := txn.New(db,
		txn.WithLogger(log.Named("txn")),
		txn.WithIsolation(isolation),
		txn.WithMetrics(txn.NewMetrics(reg)))

	svcOpts := []Option{
		WithLogger(log.Named("service")),
		WithMetrics(NewPrometheusMetricsRecorder(reg)),
		WithCalculator(opts.Calculator),
	}
	rt := &Runtime{DB: db}
	if opts.TraceWriter != nil {
		rt.Tracer = NewJSONTracer(opts.TraceWriter)
		svcOpts = append(svcOpts, WithTracer(rt.Tracer))
	}
	store, err := blob.Open(ctx, blob.Config{
		Driver: blob.Driver(cfg.Blob.Driver),
		FSRoot: cfg.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:    cfg.Blob.S3.Bucket,
			Region:    cfg.Blob.S3.Region,
			Endpoint:  cfg.Blob.S3.Endpoint,
			PathStyle: cfg.Blob.S3.PathStyle,
		},
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open report archive: %w", err)
	}
	if store != nil {
		svcOpts = append(svcOpts, WithArchiver(NewReportArchiver(store)))
	}
	rt.Service = NewService(coord, svcOpts...)
	log.Debug("runtime ready",
		zap.String("driver", string(cfg.Database.Driver)),
		zap.String("isolation", isolation.String()),
		zap.String("blob", cfg.Blob.Driver))
	return rt, nil
}
