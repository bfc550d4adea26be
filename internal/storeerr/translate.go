// Package storeerr converts vendor-specific storage failures into the domain
// error taxonomy, keeping the vendor state and code for diagnosis.
package storeerr

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"irrigation/pkg/domain"
)

// Vendor identifies the database family that produced an error.
type Vendor string

// Recognised vendors.
const (
	VendorUnknown  Vendor = ""
	VendorMySQL    Vendor = "mysql"
	VendorPostgres Vendor = "postgres"
	VendorSQLite   Vendor = "sqlite"
)

// MySQL server error numbers treated as constraint violations.
const (
	mysqlDuplicateKey    = 1062
	mysqlNoReferencedRow = 1452
	mysqlRowIsReferenced = 1451
	mysqlIntegrityState  = "23000"
)

// Violation classifies a constraint failure.
type Violation int

// Violation kinds. None means the error is not a constraint violation.
const (
	None Violation = iota
	Unique
	ForeignKey
	ParentRow
	Integrity
)

func (v Violation) String() string {
	switch v {
	case Unique:
		return "unique"
	case ForeignKey:
		return "foreign_key"
	case ParentRow:
		return "parent_row"
	case Integrity:
		return "integrity"
	default:
		return "none"
	}
}

// Diagnostic is the vendor information extracted from a driver error.
type Diagnostic struct {
	Vendor     Vendor
	State      string
	Code       int
	Constraint string
	Column     string
	Message    string
}

var (
	sqliteColumnRe   = regexp.MustCompile(`constraint failed: \w+\.(\w+)`)
	mysqlKeyRe       = regexp.MustCompile(`for key '([^']+)'`)
	mysqlFKColumnRe  = regexp.MustCompile("FOREIGN KEY \\(`(\\w+)`\\)")
	mysqlConstraint  = regexp.MustCompile("CONSTRAINT `(\\w+)`")
	postgresDetailRe = regexp.MustCompile(`Key \(([^)]+)\)=`)
)

// Diagnose extracts vendor diagnostics from err. The second result is false
// when no known driver error is found in the chain.
func Diagnose(err error) (Diagnostic, bool) {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		d := Diagnostic{
			Vendor:  VendorMySQL,
			State:   strings.TrimRight(string(myErr.SQLState[:]), "\x00"),
			Code:    int(myErr.Number),
			Message: myErr.Message,
		}
		if m := mysqlKeyRe.FindStringSubmatch(myErr.Message); m != nil {
			d.Constraint = m[1]
		}
		if m := mysqlConstraint.FindStringSubmatch(myErr.Message); m != nil {
			d.Constraint = m[1]
		}
		if m := mysqlFKColumnRe.FindStringSubmatch(myErr.Message); m != nil {
			d.Column = m[1]
		}
		return d, true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		d := Diagnostic{
			Vendor:     VendorPostgres,
			State:      pgErr.Code,
			Constraint: pgErr.ConstraintName,
			Column:     pgErr.ColumnName,
			Message:    pgErr.Message,
		}
		if d.Column == "" {
			if m := postgresDetailRe.FindStringSubmatch(pgErr.Detail); m != nil {
				d.Column = m[1]
			}
		}
		return d, true
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		d := Diagnostic{
			Vendor:  VendorSQLite,
			Code:    liteErr.Code(),
			Message: liteErr.Error(),
		}
		if m := sqliteColumnRe.FindStringSubmatch(d.Message); m != nil {
			d.Column = m[1]
		}
		return d, true
	}
	return Diagnostic{}, false
}

// Classify decides whether a diagnostic describes a constraint violation. It
// depends only on the vendor, state and code.
func Classify(d Diagnostic) Violation {
	switch d.Vendor {
	case VendorMySQL:
		switch d.Code {
		case mysqlDuplicateKey:
			return Unique
		case mysqlNoReferencedRow:
			return ForeignKey
		case mysqlRowIsReferenced:
			return ParentRow
		}
		if d.State == mysqlIntegrityState {
			return Integrity
		}
	case VendorPostgres:
		switch d.State {
		case pgerrcode.UniqueViolation:
			return Unique
		case pgerrcode.ForeignKeyViolation:
			if strings.HasPrefix(d.Message, "update or delete on table") {
				return ParentRow
			}
			return ForeignKey
		}
		if strings.HasPrefix(d.State, "23") {
			return Integrity
		}
	case VendorSQLite:
		switch d.Code {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return Unique
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return ForeignKey
		}
		if d.Code&0xff == sqlite3.SQLITE_CONSTRAINT {
			return Integrity
		}
	}
	return None
}

// IsConstraintViolation reports whether err is any recognised constraint failure.
func IsConstraintViolation(err error) bool {
	d, ok := Diagnose(err)
	return ok && Classify(d) != None
}

// IsUniqueViolation reports whether err is a uniqueness failure.
func IsUniqueViolation(err error) bool {
	d, ok := Diagnose(err)
	return ok && Classify(d) == Unique
}

// Hint names the domain field a constraint protects, so the translated
// ValidationError speaks in the caller's vocabulary.
type Hint func(*hints)

type hints struct {
	uniqueField    string
	uniqueValue    any
	referenceField string
	referenceValue any
}

// UniqueField names the field guarded by a uniqueness constraint.
func UniqueField(field string, value any) Hint {
	return func(h *hints) {
		h.uniqueField = field
		h.uniqueValue = value
	}
}

// ReferenceField names the field holding a foreign reference.
func ReferenceField(field string, value any) Hint {
	return func(h *hints) {
		h.referenceField = field
		h.referenceValue = value
	}
}

// Translate classifies err for the operation named by op. Errors that already
// belong to the domain taxonomy are returned unchanged.
func Translate(err error, op string, opts ...Hint) error {
	if err == nil {
		return nil
	}
	if isDomain(err) {
		return err
	}
	var h hints
	for _, opt := range opts {
		opt(&h)
	}
	d, ok := Diagnose(err)
	if !ok {
		return &domain.StorageError{Message: fmt.Sprintf("%s: %v", op, err), Cause: err}
	}
	switch Classify(d) {
	case Unique:
		field := firstNonEmpty(h.uniqueField, d.Column, d.Constraint, "unknown")
		return &domain.ValidationError{Field: field, Value: h.uniqueValue, Message: "value already exists"}
	case ForeignKey:
		field := firstNonEmpty(h.referenceField, d.Column, d.Constraint, "unknown")
		return &domain.ValidationError{Field: field, Value: h.referenceValue, Message: "referenced record does not exist"}
	}
	return &domain.StorageError{
		Message:     fmt.Sprintf("%s: %s", op, d.Message),
		VendorState: d.State,
		VendorCode:  d.Code,
		Cause:       err,
	}
}

func isDomain(err error) bool {
	return domain.IsValidation(err) || domain.IsStorage(err) || domain.IsBusinessRule(err) || domain.IsNotFound(err)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
