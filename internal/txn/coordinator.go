// Package txn coordinates atomic units of work against a relational store.
//
// A root call to Run opens a dedicated connection and a read-committed
// transaction; Run calls that receive that Handle nest inside it through
// savepoints. Only the root commits or rolls back the whole transaction.
package txn

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"irrigation/internal/storeerr"
	"irrigation/pkg/domain"
)

// Func is a unit of work executed against the handle's transaction.
type Func func(ctx context.Context, h *Handle) error

// Coordinator owns the transaction lifecycle for one database pool.
type Coordinator struct {
	db        *sqlx.DB
	log       *zap.Logger
	isolation sql.IsolationLevel
	metrics   *Metrics
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger used for lifecycle and rollback reporting.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithIsolation overrides the isolation level of root transactions.
func WithIsolation(level sql.IsolationLevel) Option {
	return func(c *Coordinator) { c.isolation = level }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New constructs a Coordinator over db. Root transactions default to
// sql.LevelReadCommitted.
func New(db *sqlx.DB, opts ...Option) *Coordinator {
	c := &Coordinator{
		db:        db,
		log:       zap.NewNop(),
		isolation: sql.LevelReadCommitted,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DB returns the underlying pool.
func (c *Coordinator) DB() *sqlx.DB { return c.db }

// Run executes fn atomically. With a nil parent it begins a root transaction
// that is committed when fn succeeds and rolled back otherwise. With an active
// parent it runs fn inside a savepoint: success releases the savepoint, failure
// rolls back to it and leaves the outer work for the outer caller to decide.
//
// Errors are returned translated into the domain taxonomy. A failed rollback is
// logged and never replaces the error that triggered it.
func (c *Coordinator) Run(ctx context.Context, parent *Handle, label string, fn Func) error {
	if parent == nil {
		return c.runRoot(ctx, label, fn)
	}
	return c.runNested(ctx, parent, label, fn)
}

// Do is Run for units that produce a value.
func Do[T any](ctx context.Context, c *Coordinator, parent *Handle, label string, fn func(context.Context, *Handle) (T, error)) (T, error) {
	var out T
	err := c.Run(ctx, parent, label, func(ctx context.Context, h *Handle) error {
		v, err := fn(ctx, h)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// CurrentConnection returns the transaction of an active handle, or the
// auto-commit pool when h is nil or finished. Simple repository calls use it so
// they run inside a caller's transaction when there is one.
func (c *Coordinator) CurrentConnection(h *Handle) Conn {
	if h.Active() {
		return h.tx
	}
	return c.db
}

// IsActive reports whether h refers to an open transaction.
func (c *Coordinator) IsActive(h *Handle) bool { return h.Active() }

func (c *Coordinator) begin(ctx context.Context) (*Handle, error) {
	conn, err := c.db.Connx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "open connection")
	}
	tx, err := conn.BeginTxx(ctx, &sql.TxOptions{Isolation: c.isolation})
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "begin transaction")
	}
	return &Handle{conn: conn, tx: tx, started: time.Now()}, nil
}

func (c *Coordinator) runRoot(ctx context.Context, label string, fn Func) (err error) {
	h, err := c.begin(ctx)
	if err != nil {
		c.metrics.transaction(outcomeBegin, time.Time{})
		return storeerr.Translate(err, label)
	}
	log := c.log.With(zap.String("unit", label))
	log.Debug("transaction started", zap.String("isolation", c.isolation.String()))
	defer c.cleanup(h, log)

	defer func() {
		if p := recover(); p != nil {
			c.rollback(h, log, fmt.Errorf("panic: %v", p))
			panic(p)
		}
	}()

	if err := fn(ctx, h); err != nil {
		c.rollback(h, log, err)
		return storeerr.Translate(err, label)
	}
	if err := h.tx.Commit(); err != nil {
		c.metrics.transaction(outcomeRollback, h.started)
		log.Warn("commit failed", zap.Error(err))
		return storeerr.Translate(errors.Wrap(err, "commit"), label)
	}
	c.metrics.transaction(outcomeCommit, h.started)
	log.Debug("transaction committed", zap.Duration("elapsed", time.Since(h.started)))
	return nil
}

func (c *Coordinator) rollback(h *Handle, log *zap.Logger, cause error) {
	c.metrics.transaction(outcomeRollback, h.started)
	if err := h.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		c.metrics.rollbackFailed()
		log.Error("rollback failed", zap.Error(err), zap.NamedError("cause", cause))
		return
	}
	log.Info("transaction rolled back", zap.NamedError("cause", cause))
}

// cleanup runs only for the root: it returns the dedicated connection to the
// pool, which also restores auto-commit mode.
func (c *Coordinator) cleanup(h *Handle, log *zap.Logger) {
	h.finished = true
	h.savepoints = nil
	if err := h.conn.Close(); err != nil {
		log.Warn("closing transaction connection", zap.Error(err))
	}
}

func (c *Coordinator) runNested(ctx context.Context, h *Handle, label string, fn Func) error {
	if !h.Active() {
		return &domain.StorageError{Message: label + ": transaction handle is no longer active"}
	}
	name, err := h.push(ctx)
	if err != nil {
		return storeerr.Translate(errors.Wrap(err, "create savepoint"), label)
	}
	log := c.log.With(zap.String("unit", label), zap.String("savepoint", name), zap.Int("depth", h.Depth()))
	log.Debug("savepoint created")

	defer func() {
		if p := recover(); p != nil {
			c.rollbackTo(ctx, h, name, log, fmt.Errorf("panic: %v", p))
			panic(p)
		}
	}()

	if err := fn(ctx, h); err != nil {
		c.rollbackTo(ctx, h, name, log, err)
		return storeerr.Translate(err, label)
	}
	if err := h.release(ctx, name); err != nil {
		c.rollbackTo(ctx, h, name, log, err)
		return storeerr.Translate(errors.Wrap(err, "release savepoint"), label)
	}
	c.metrics.savepoint(outcomeRelease)
	log.Debug("savepoint released")
	return nil
}

func (c *Coordinator) rollbackTo(ctx context.Context, h *Handle, name string, log *zap.Logger, cause error) {
	c.metrics.savepoint(outcomeRollback)
	if err := h.rollbackTo(context.WithoutCancel(ctx), name); err != nil {
		c.metrics.rollbackFailed()
		log.Error("rollback to savepoint failed", zap.Error(err), zap.NamedError("cause", cause))
		return
	}
	log.Info("rolled back to savepoint", zap.NamedError("cause", cause))
}
