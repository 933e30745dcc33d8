package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")
	// ErrValidation signals malformed caller input. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrNotImplemented signals an unimplemented or unconfigured feature.
	ErrNotImplemented = errors.New("not implemented")

	// ErrBackendUnavailable signals a transient backend failure (timeout, connection loss).
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrServiceUnavailable signals that both the index engine and the relational fallback failed.
	ErrServiceUnavailable = errors.New("search service unavailable")
	// ErrRewriteQuotaExceeded signals that the rewriter's token budget is spent.
	ErrRewriteQuotaExceeded = errors.New("rewrite token budget exceeded")
	// ErrPermanentTask signals a sync task that exhausted its retries.
	ErrPermanentTask = errors.New("sync task permanently failed")

	// ErrExperimentNotFound signals a missing experiment.
	ErrExperimentNotFound = errors.New("experiment not found")
	// ErrExperimentStopped signals that an experiment no longer accepts assignments.
	ErrExperimentStopped = errors.New("experiment is not active")
	// ErrInvalidTransition signals an illegal experiment lifecycle change.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)

// ValidationError carries the offending field alongside ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation.Error(), e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation.Error(), e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidation creates a validation error for a field.
func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransientError wraps a recoverable backend failure with the operation that hit it.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrBackendUnavailable.Error(), e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the cause to errors.Is.
func (e *TransientError) Unwrap() []error { return []error{ErrBackendUnavailable, e.Err} }

// NewTransient wraps err as a transient backend failure. Nil stays nil.
func NewTransient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}
