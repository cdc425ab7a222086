package invoice

import (
	"errors"
	"fmt"

	"dragonfly/internal/identity"
)

// The five failure kinds surfaced by every engine operation.
var (
	// ErrNotAuthenticated is returned when no caller identity can be resolved.
	// It is the same value as identity.ErrNotAuthenticated.
	ErrNotAuthenticated = identity.ErrNotAuthenticated

	// ErrForbidden is returned when the caller may not perform the action on
	// this record. Retrying as the same identity will not help.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when the referenced invoice does not exist.
	ErrNotFound = errors.New("invoice not found")

	// ErrValidation is returned when a request breaks a business rule: wrong
	// source state, missing required field, bad amount or date.
	ErrValidation = errors.New("validation error")

	// ErrVersionConflict is returned when the expected version does not match
	// the stored one. No mutation happened; refetch and retry.
	ErrVersionConflict = errors.New("version conflict")
)

// Kind is the wire code of a failure kind.
type Kind string

const (
	KindNotAuthenticated Kind = "NOT_AUTHENTICATED"
	KindForbidden        Kind = "FORBIDDEN"
	KindNotFound         Kind = "NOT_FOUND"
	KindValidation       Kind = "VALIDATION_ERROR"
	KindVersionConflict  Kind = "VERSION_CONFLICT"
)

// KindOf maps err onto one of the five kinds. The second result is false for
// errors outside the taxonomy.
func KindOf(err error) (Kind, bool) {
	switch {
	case err == nil:
		return "", false
	case errors.Is(err, ErrNotAuthenticated):
		return KindNotAuthenticated, true
	case errors.Is(err, ErrForbidden):
		return KindForbidden, true
	case errors.Is(err, ErrNotFound):
		return KindNotFound, true
	case errors.Is(err, ErrValidation):
		return KindValidation, true
	case errors.Is(err, ErrVersionConflict):
		return KindVersionConflict, true
	}
	return "", false
}

// Error carries the operation, the invoice and a caller-facing message
// alongside one of the kind sentinels.
type Error struct {
	// Op is the engine operation that failed (e.g. "Submit", "MarkPaid").
	Op string

	// InvoiceID is the invoice the operation targeted, if any.
	InvoiceID string

	// Err is one of the kind sentinels.
	Err error

	// Message is safe to show to the caller.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	target := e.Op
	if e.InvoiceID != "" {
		target = fmt.Sprintf("%s %s", e.Op, e.InvoiceID)
	}
	if e.Message != "" {
		return fmt.Sprintf("invoice: %s: %v: %s", target, e.Err, e.Message)
	}
	return fmt.Sprintf("invoice: %s: %v", target, e.Err)
}

// Unwrap returns the kind sentinel.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// Message returns the caller-facing message of err, falling back to its text.
func Message(err error) string {
	var ie *Error
	if errors.As(err, &ie) && ie.Message != "" {
		return ie.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func newError(op, id string, kind error, msg string) *Error {
	return &Error{Op: op, InvoiceID: id, Err: kind, Message: msg}
}

func validationf(op, id, format string, args ...any) *Error {
	return newError(op, id, ErrValidation, fmt.Sprintf(format, args...))
}

// wrapError attaches op and id to a bare kind sentinel. Errors that already
// carry an *Error keep their original context.
func wrapError(op, id string, err error) error {
	if err == nil {
		return nil
	}
	var ie *Error
	if errors.As(err, &ie) {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return newError(op, id, ErrNotFound, fmt.Sprintf("Invoice with id %s not found", id))
	case errors.Is(err, ErrVersionConflict):
		return newError(op, id, ErrVersionConflict, "Invoice was modified. Please refresh and try again.")
	case errors.Is(err, ErrNotAuthenticated):
		return newError(op, id, ErrNotAuthenticated, "You must be logged in.")
	}
	return fmt.Errorf("invoice: %s %s: %w", op, id, err)
}
