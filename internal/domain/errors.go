package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeRetrieval     = "RETRIEVAL_ERROR"
	ErrCodeGeneration    = "GENERATION_ERROR"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrMissingClientID   = NewDomainError(ErrCodeValidation, "client id is required")
	ErrEmptyContent      = NewDomainError(ErrCodeValidation, "chunk content is required")
	ErrMissingSourceType = NewDomainError(ErrCodeValidation, "chunk source type is required")
	ErrMissingSourceID   = NewDomainError(ErrCodeValidation, "chunk source id is required")
	ErrEmptyQuery        = NewDomainError(ErrCodeValidation, "search query is required")
)

// Configuration errors are fatal to the turn; no outbound send is attempted.
var (
	ErrPersonaNotFound = NewDomainError(ErrCodeNotFound, "no persona configured for client id")
)

// Retrieval errors are recovered locally; the turn proceeds with empty context.
var (
	ErrRetrievalFailed = NewDomainError(ErrCodeRetrieval, "knowledge retrieval failed")
)

// Generation errors are terminal to the turn; nothing is sent to the visitor.
var (
	ErrGenerationFailed = NewDomainError(ErrCodeGeneration, "response generation failed")
)
