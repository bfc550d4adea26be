// Package repository holds the parameterized statements for the plot, tree,
// measurement and recommendation tables. Every function takes the connection
// to run on, so the same code serves auto-commit reads and statements inside a
// coordinator transaction.
//
// Statements are written with '?' placeholders and rebound for the driver.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"irrigation/internal/txn"
	"irrigation/pkg/domain"
)

// Conn is the statement surface the repository runs on.
type Conn = txn.Conn

// insert runs an INSERT and returns the generated key. Drivers with dollar
// placeholders (Postgres) have no LastInsertId, so the key comes back through
// RETURNING instead.
func insert(ctx context.Context, c Conn, query, idColumn string, args ...any) (int64, error) {
	if sqlx.BindType(c.DriverName()) == sqlx.DOLLAR {
		var id int64
		if err := c.GetContext(ctx, &id, c.Rebind(query+" RETURNING "+idColumn), args...); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := c.ExecContext(ctx, c.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read generated key: %w", err)
	}
	return id, nil
}

func exec(ctx context.Context, c Conn, query string, args ...any) (int64, error) {
	res, err := c.ExecContext(ctx, c.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read affected rows: %w", err)
	}
	return n, nil
}

// in expands a single IN (?) list and rebinds the result.
func in(c Conn, query string, args ...any) (string, []any, error) {
	q, expanded, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return c.Rebind(q), expanded, nil
}

func getOne(ctx context.Context, c Conn, dest any, entity domain.EntityType, id int64, query string, args ...any) error {
	err := c.GetContext(ctx, dest, c.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NotFoundError{Entity: entity, ID: id}
	}
	return err
}
