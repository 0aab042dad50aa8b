// Package errors provides structured error handling for Quarry.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk)
//   - 3XX: Backend errors (embedding provider, vector store)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryBackend indicates embedding-provider or vector-store errors.
	CategoryBackend Category = "BACKEND"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFileTooLarge = "ERR_202_FILE_TOO_LARGE"
	ErrCodeManifestIO   = "ERR_203_MANIFEST_IO"

	// Backend errors (300-399)
	// ErrCodeEmbeddingUnavailable means the embedding backend is unreachable
	// or misconfigured. Search degrades to lexical-only; the process keeps running.
	ErrCodeEmbeddingUnavailable = "ERR_301_EMBEDDING_UNAVAILABLE"
	// ErrCodeBackendUnavailable means the vector store is unreachable after
	// retries. Indexing pauses; the last-known-good index stays queryable.
	ErrCodeBackendUnavailable = "ERR_302_BACKEND_UNAVAILABLE"
	// ErrCodeBackendTransient marks a single failed backend call that is
	// worth retrying before escalating to ErrCodeBackendUnavailable.
	ErrCodeBackendTransient = "ERR_303_BACKEND_TRANSIENT"

	// Validation errors (400-499)
	// ErrCodeSchemaMismatch means an existing collection has a different
	// vector dimension than the active embedder. Fatal for that collection;
	// vectors are never silently truncated.
	ErrCodeSchemaMismatch = "ERR_401_SCHEMA_MISMATCH"
	ErrCodeInvalidQuery   = "ERR_402_INVALID_QUERY"
	ErrCodeInvalidPath    = "ERR_403_INVALID_PATH"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
	// ErrCodeChunkingFailed means a single file could not be read or split.
	// The file is skipped and logged; the rest of the batch proceeds.
	ErrCodeChunkingFailed = "ERR_502_CHUNKING_FAILED"
	ErrCodeIndexFailed    = "ERR_503_INDEX_FAILED"
	ErrCodeSearchFailed   = "ERR_504_SEARCH_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryBackend
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeSchemaMismatch:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeBackendTransient, ErrCodeEmbeddingUnavailable:
		return true
	default:
		return false
	}
}
