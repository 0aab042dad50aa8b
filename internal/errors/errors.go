package errors

import (
	"errors"
	"fmt"
)

// QuarryError is the structured error type for the indexing engine.
// It carries a stable code so callers can branch on failure class without
// string matching, plus enough context for logs and the status surface.
type QuarryError struct {
	// Code is the unique error code (e.g., "ERR_302_BACKEND_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Backend, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *QuarryError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *QuarryError) Unwrap() error {
	return e.Cause
}

// Is matches by code so errors.Is works across wrapped instances.
func (e *QuarryError) Is(target error) bool {
	if t, ok := target.(*QuarryError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *QuarryError) WithDetail(key, value string) *QuarryError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new QuarryError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *QuarryError {
	return &QuarryError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a QuarryError from an existing error.
// The error's message becomes the QuarryError message.
func Wrap(code string, err error) *QuarryError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinel instances for errors.Is checks against the engine taxonomy.
var (
	// ErrEmbeddingUnavailable: embedding backend unreachable or misconfigured.
	ErrEmbeddingUnavailable = New(ErrCodeEmbeddingUnavailable, "embedding backend unavailable", nil)

	// ErrBackendUnavailable: vector store unreachable after retries.
	ErrBackendUnavailable = New(ErrCodeBackendUnavailable, "vector store backend unavailable", nil)

	// ErrSchemaMismatch: collection dimension conflicts with the embedder.
	ErrSchemaMismatch = New(ErrCodeSchemaMismatch, "collection dimension mismatch", nil)

	// ErrChunkingFailed: one file could not be read or chunked.
	ErrChunkingFailed = New(ErrCodeChunkingFailed, "file could not be chunked", nil)
)

// IsEmbeddingUnavailable reports whether err is (or wraps) an
// embedding-unavailable failure.
func IsEmbeddingUnavailable(err error) bool {
	return errors.Is(err, ErrEmbeddingUnavailable)
}

// IsBackendUnavailable reports whether err is (or wraps) a
// vector-store-unavailable failure.
func IsBackendUnavailable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}

// IsSchemaMismatch reports whether err is (or wraps) a collection
// dimension conflict.
func IsSchemaMismatch(err error) bool {
	return errors.Is(err, ErrSchemaMismatch)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var qe *QuarryError
	if errors.As(err, &qe) {
		return qe.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var qe *QuarryError
	if errors.As(err, &qe) {
		return qe.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a QuarryError.
// Returns empty string if not a QuarryError.
func GetCode(err error) string {
	var qe *QuarryError
	if errors.As(err, &qe) {
		return qe.Code
	}
	return ""
}
