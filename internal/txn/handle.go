package txn

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Conn is the statement surface shared by transactional and auto-commit
// execution. Both *sqlx.DB and *sqlx.Tx satisfy it.
type Conn interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

var (
	_ Conn = (*sqlx.DB)(nil)
	_ Conn = (*sqlx.Tx)(nil)
)

// Handle is the unit of work opened by a root Run: a dedicated connection, the
// transaction on it, and the stack of savepoints pushed by nested Run calls.
//
// A Handle belongs to the goroutine that received it from Run and must not be
// shared with other goroutines.
type Handle struct {
	conn       *sqlx.Conn
	tx         *sqlx.Tx
	savepoints []string
	seq        int
	finished   bool
	started    time.Time
}

// Conn returns the transaction's statement surface.
func (h *Handle) Conn() Conn { return h.tx }

// Depth is the number of savepoints currently active beyond the root.
func (h *Handle) Depth() int { return len(h.savepoints) }

// Root reports whether no savepoint is active.
func (h *Handle) Root() bool { return len(h.savepoints) == 0 }

// Active reports whether the handle still has an open transaction.
func (h *Handle) Active() bool { return h != nil && !h.finished }

func (h *Handle) push(ctx context.Context) (string, error) {
	name := fmt.Sprintf("sp_%d", h.seq+1)
	if _, err := h.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return "", err
	}
	h.seq++
	h.savepoints = append(h.savepoints, name)
	return name, nil
}

func (h *Handle) release(ctx context.Context, name string) error {
	if _, err := h.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return err
	}
	h.pop(name)
	return nil
}

// rollbackTo undoes the work done since name and then releases it, so the
// server-side savepoint list matches the handle's stack.
func (h *Handle) rollbackTo(ctx context.Context, name string) error {
	defer h.pop(name)
	if _, err := h.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
		return err
	}
	_, err := h.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	return err
}

// pop removes name and anything pushed after it.
func (h *Handle) pop(name string) {
	for i := len(h.savepoints) - 1; i >= 0; i-- {
		if h.savepoints[i] == name {
			h.savepoints = h.savepoints[:i]
			return
		}
	}
}
