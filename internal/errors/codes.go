package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a specific failure class of the retrieval engine.
type ErrorCode string

const (
	// ErrCodeEmptyInput indicates content that is empty or whitespace-only.
	ErrCodeEmptyInput ErrorCode = "EMPTY_INPUT"
	// ErrCodeEmbeddingUnavailable indicates the embedding provider failed after retries.
	ErrCodeEmbeddingUnavailable ErrorCode = "EMBEDDING_UNAVAILABLE"
	// ErrCodeGenerationUnavailable indicates the generation provider failed after the retry.
	ErrCodeGenerationUnavailable ErrorCode = "GENERATION_UNAVAILABLE"
	// ErrCodeNoDocuments indicates a query against a corpus with no documents.
	ErrCodeNoDocuments ErrorCode = "NO_DOCUMENTS"
	// ErrCodeDocumentNotFound indicates the requested document does not exist.
	ErrCodeDocumentNotFound ErrorCode = "DOCUMENT_NOT_FOUND"
	// ErrCodeIndexCorruption indicates an unreadable or tampered index snapshot.
	ErrCodeIndexCorruption ErrorCode = "INDEX_CORRUPTION"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeInternal indicates an unexpected engine-side failure.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// EngineError represents a structured error for engine operations.
type EngineError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *EngineError) WithContext(key string, value interface{}) *EngineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// GetCode returns the error code.
func (e *EngineError) GetCode() ErrorCode {
	return e.Code
}

// Convenience constructors for common error types.

// EmptyInput creates an empty input error.
func EmptyInput(msg string) *EngineError {
	return &EngineError{Code: ErrCodeEmptyInput, Message: msg}
}

// EmbeddingUnavailable creates an embedding unavailable error.
func EmbeddingUnavailable(msg string, cause error) *EngineError {
	return &EngineError{Code: ErrCodeEmbeddingUnavailable, Message: msg, Cause: cause}
}

// GenerationUnavailable creates a generation unavailable error.
func GenerationUnavailable(msg string, cause error) *EngineError {
	return &EngineError{Code: ErrCodeGenerationUnavailable, Message: msg, Cause: cause}
}

// NoDocuments creates a no documents error.
func NoDocuments(msg string) *EngineError {
	return &EngineError{Code: ErrCodeNoDocuments, Message: msg}
}

// DocumentNotFound creates a document not found error.
func DocumentNotFound(uid string) *EngineError {
	return &EngineError{
		Code:    ErrCodeDocumentNotFound,
		Message: fmt.Sprintf("document not found: %s", uid),
	}
}

// IndexCorruption creates an index corruption error.
func IndexCorruption(msg string, cause error) *EngineError {
	return &EngineError{Code: ErrCodeIndexCorruption, Message: msg, Cause: cause}
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *EngineError {
	return &EngineError{Code: ErrCodeInvalidArgument, Message: msg}
}

// Internal creates an internal error.
func Internal(msg string, cause error) *EngineError {
	return &EngineError{Code: ErrCodeInternal, Message: msg, Cause: cause}
}

// Wrap wraps an existing error with a code and message.
func Wrap(cause error, code ErrorCode, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg, Cause: cause}
}

// IsCode checks if an error carries a specific code, unwrapping as needed.
func IsCode(err error, code ErrorCode) bool {
	var engineErr *EngineError
	if stderrors.As(err, &engineErr) {
		return engineErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not an EngineError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	var engineErr *EngineError
	if stderrors.As(err, &engineErr) {
		return engineErr.Code
	}
	return defaultCode
}
