// Package service holds the objection lifecycle, the admin listings and
// the farmer account flows. Callers classify failures with errors.Is
// against the sentinels below; input problems come back as *ValidationError.
package service

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

var (
	// ErrForbidden means the actor's role may not perform the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict means the farmer already has a pending or reviewed
	// objection, or a unique identifier is taken.
	ErrConflict = errors.New("conflict")
	// ErrInvalidTransition means the requested status edge does not exist.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotFound means the referenced objection or farmer is absent.
	ErrNotFound = errors.New("not found")
	// ErrStorageUnavailable wraps every storage failure. It is retryable.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrInvalidCredentials is returned by both login flows.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidResetCode covers wrong, expired or missing reset codes and tokens.
	ErrInvalidResetCode = errors.New("invalid or expired reset code")
)

// ValidationError reports malformed input, field by field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, k := range slices.Sorted(maps.Keys(e.Fields)) {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// storageErr tags err as a storage failure while keeping the cause
// reachable through errors.Is/As.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
