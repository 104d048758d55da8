// Package apperrors defines the registry's error taxonomy.
//
// Callers match categories with errors.Is against the sentinels
// (ErrNotFound, ErrValidation, ErrConflict, ErrStorage) and use errors.As
// with the concrete types when they need the details.
package apperrors

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrStorage    = errors.New("storage failure")
)

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError reports malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConflictError reports a request that contradicts stored state, such as a
// version that belongs to another automaton or a lost concurrent race.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Reason }

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// StorageError wraps a transaction, query or commit failure. It is always
// surfaced to the caller and never retried by the registry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// NotFound is shorthand for &NotFoundError{Entity: entity, ID: id}.
func NotFound(entity string, id fmt.Stringer) error {
	if id == nil {
		return &NotFoundError{Entity: entity}
	}
	return &NotFoundError{Entity: entity, ID: id.String()}
}

// Invalid is shorthand for &ValidationError{Field: field, Reason: reason}.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Conflict is shorthand for &ConflictError{Reason: fmt.Sprintf(format, args...)}.
func Conflict(format string, args ...any) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// Storage wraps err as a StorageError for op. Errors that already belong to
// the taxonomy are returned unchanged. Context cancellation and deadlines
// are the caller's doing, not a storage failure: they come back wrapped with
// op but unclassified.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsClassified(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &StorageError{Op: op, Err: err}
}

// IsClassified reports whether err already carries one of the taxonomy
// categories.
func IsClassified(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrStorage)
}
