// Package sqlbundle exposes the schema DDL bundles to the persistence openers.
package sqlbundle

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"strings"

	sqldocs "irrigation/docs/schema/sql"
)

// Dialect names accepted by ForDialect.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

// SQLite returns the SQLite DDL.
func SQLite() string {
	return sqldocs.SQLite
}

// Postgres returns the Postgres DDL.
func Postgres() string {
	return sqldocs.Postgres
}

// MySQL returns the MySQL DDL.
func MySQL() string {
	return sqldocs.MySQL
}

// ForDialect returns the DDL bundle for the named dialect.
func ForDialect(dialect string) (string, error) {
	switch dialect {
	case DialectSQLite:
		return SQLite(), nil
	case DialectPostgres:
		return Postgres(), nil
	case DialectMySQL:
		return MySQL(), nil
	default:
		return "", fmt.Errorf("no schema bundle for dialect %q", dialect)
	}
}

// Execer runs a single statement. *sql.DB, *sqlx.DB and their transactions
// satisfy it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Apply executes every statement of ddl in order and stops at the first failure.
func Apply(ctx context.Context, db Execer, ddl string) error {
	for i, stmt := range SplitStatements(ddl) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl statement %d: %w", i+1, err)
		}
	}
	return nil
}

// SplitStatements splits a semicolon-terminated DDL script into executable statements.
// It drops blank lines and single-line comments that start with "--".
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}

	if tail := strings.TrimSpace(current.String()); tail != "" {
		stmts = append(stmts, tail)
	}

	return stmts
}
