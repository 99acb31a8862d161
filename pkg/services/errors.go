// Package services contains the business logic layer shared by the HTTP API
// and the turn worker. Services own all SQL; handlers own all HTTP.
package services

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when an entity does not exist or is not
	// visible to the calling user. Ownership failures on reads
	// deliberately look identical to missing rows.
	ErrNotFound = errors.New("entity not found")

	// ErrForbidden is returned when an operation is denied by policy,
	// such as demo-instance protection.
	ErrForbidden = errors.New("operation not allowed")

	// ErrConflict is returned when an operation collides with existing
	// state, such as a duplicate title or a token still in use.
	ErrConflict = errors.New("conflicting state")

	// ErrUnauthorized is returned when credentials do not check out.
	ErrUnauthorized = errors.New("invalid credentials")
)

// ValidationError wraps field-specific validation errors.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isForeignKeyViolation reports whether err is a Postgres foreign key
// violation (SQLSTATE 23503).
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
