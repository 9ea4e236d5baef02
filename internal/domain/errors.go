package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.
// Typed errors below unwrap to these so callers can use errors.Is.

var (
	// Input errors
	ErrValidation  = errors.New("validation failed")
	ErrNotUnlocked = errors.New("not unlocked")

	// Store errors
	ErrPersistence  = errors.New("persistence failed")
	ErrConflict     = errors.New("concurrent write detected")
	ErrUserNotFound = errors.New("user aggregate not found")
)

// ValidationError reports malformed or out-of-range input. Nothing was mutated;
// retrying with corrected input is safe.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotUnlockedError reports use of a title or badge the user has not earned.
type NotUnlockedError struct {
	Title string
}

func (e *NotUnlockedError) Error() string {
	return fmt.Sprintf("title %q is not unlocked", e.Title)
}

func (e *NotUnlockedError) Unwrap() error { return ErrNotUnlocked }

// PersistenceError wraps an opaque failure from the backing store.
// It always propagates to the caller; the core never retries.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the underlying store error.
func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// Invalid is shorthand for a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Persist wraps err as a PersistenceError unless it already is one.
func Persist(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
