package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports bad input shape or range, or a constraint violation
// detected by the store after the fact.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed for %s (%v): %s", e.Field, e.Value, e.Message)
}

// StorageError wraps any other low-level storage failure while keeping the
// vendor diagnostics for troubleshooting.
type StorageError struct {
	Message     string
	VendorState string
	VendorCode  int
	Cause       error
}

func (e *StorageError) Error() string {
	switch {
	case e.VendorState != "" && e.VendorCode != 0:
		return fmt.Sprintf("%s (state %s, code %d)", e.Message, e.VendorState, e.VendorCode)
	case e.VendorState != "":
		return fmt.Sprintf("%s (state %s)", e.Message, e.VendorState)
	case e.VendorCode != 0:
		return fmt.Sprintf("%s (code %d)", e.Message, e.VendorCode)
	}
	return e.Message
}

func (e *StorageError) Unwrap() error { return e.Cause }

// BusinessRuleError reports a violated domain invariant, such as transferring a
// tree that does not belong to the stated source plot.
type BusinessRuleError struct {
	Message string
}

func (e *BusinessRuleError) Error() string { return e.Message }

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// NewBusinessRuleError formats a BusinessRuleError.
func NewBusinessRuleError(format string, args ...any) *BusinessRuleError {
	return &BusinessRuleError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsStorage reports whether err carries a StorageError.
func IsStorage(err error) bool {
	var target *StorageError
	return errors.As(err, &target)
}

// IsBusinessRule reports whether err carries a BusinessRuleError.
func IsBusinessRule(err error) bool {
	var target *BusinessRuleError
	return errors.As(err, &target)
}

// IsNotFound reports whether err carries a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// Kind returns a short label for the error's taxonomy class, or "unknown".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsValidation(err):
		return "validation"
	case IsNotFound(err):
		return "not_found"
	case IsBusinessRule(err):
		return "business_rule"
	case IsStorage(err):
		return "storage"
	default:
		return "unknown"
	}
}
