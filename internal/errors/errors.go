package errors

import (
	"errors"
	"fmt"
)

// Error is the structured error type for codescope. It carries the kind
// taxonomy plus optional key-value details for logging.
type Error struct {
	// Kind classifies the failure for retry and job-control decisions.
	Kind Kind

	// Op is the operation that failed (e.g., "vectorstore.upsert").
	Op string

	// Message is the human-readable error message.
	Message string

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: [%s] %s", e.Op, e.Kind, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches two Errors by kind so callers can use errors.Is with sentinel
// kind errors.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Retryable reports whether this error may be retried.
func (e *Error) Retryable() bool {
	return e.Kind.retryable()
}

// WithDetail adds a key-value detail and returns the error for chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new Error with the given kind, operation, and message.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap creates an Error from an existing error. Returns nil for a nil cause.
// If the cause is already an *Error its kind is preserved unless kind is
// stronger (validation over transient in particular does not get downgraded).
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: err.Error(), Cause: err}
}

// Transient creates a retryable transient error.
func Transient(op string, err error) *Error { return Wrap(KindTransient, op, err) }

// Validation creates a fatal validation error.
func Validation(op, message string) *Error { return New(KindValidation, op, message) }

// NotFound creates a not-found error.
func NotFound(op, message string) *Error { return New(KindNotFound, op, message) }

// Permission creates a permission error.
func Permission(op string, err error) *Error { return Wrap(KindPermission, op, err) }

// Conflict creates a conflict error.
func Conflict(op, message string) *Error { return New(KindConflict, op, message) }

// Internal creates an internal error.
func Internal(op string, err error) *Error { return Wrap(KindInternal, op, err) }

// KindOf extracts the kind from any error. Unclassified errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err should be retried under the retry policy.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

// As and Is re-export the stdlib helpers so callers need a single import.
func As(err error, target any) bool { return errors.As(err, target) }
func Is(err, target error) bool     { return errors.Is(err, target) }
