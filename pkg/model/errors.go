package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a document is not found.
	ErrNotFound = errors.New("document not found")
	// ErrStoreTimeout is returned when a store call exceeds its deadline.
	// Retryable by the caller; the engine never retries internally.
	ErrStoreTimeout = errors.New("store timeout")
	// ErrStoreUnavailable is returned on transient store failures.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrCanceled is returned when the operation is canceled by the caller.
	ErrCanceled = errors.New("operation canceled")
)

// ValidationError rejects a whole query, naming the offending leaf. Carries a
// machine-readable code and never leaks internals.
type ValidationError struct {
	Field   string   `json:"field,omitempty"`
	Op      FilterOp `json:"operator,omitempty"`
	Message string   `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field != "" && e.Op != "" {
		return fmt.Sprintf("invalid query: field %q, operator %q: %s", e.Field, e.Op, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid query: field %q: %s", e.Field, e.Message)
	}
	return "invalid query: " + e.Message
}

// NewValidationError builds a ValidationError for a leaf condition.
func NewValidationError(field string, op FilterOp, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Op: op, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a query validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsRetryable reports whether the caller may safely retry the request.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreTimeout) || errors.Is(err, ErrStoreUnavailable)
}

// WrapStoreError maps driver errors to model sentinels. Context expiry is a
// timeout when a deadline was set, a cancellation otherwise.
func WrapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrStoreTimeout, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return ErrCanceled
	}
	// Driver errors sometimes wrap context errors as strings only.
	msg := err.Error()
	if strings.Contains(msg, "context deadline exceeded") {
		return fmt.Errorf("%w: %s", ErrStoreTimeout, msg)
	}
	if strings.Contains(msg, "context canceled") {
		return ErrCanceled
	}
	if strings.Contains(msg, "server selection error") || strings.Contains(msg, "connection refused") {
		return fmt.Errorf("%w: %s", ErrStoreUnavailable, msg)
	}
	return err
}
