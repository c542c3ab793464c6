package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Facet error code.
type ErrorCode string

const (
	ErrValidation       ErrorCode = "VALIDATION_ERROR"  // 400
	ErrNotFound         ErrorCode = "NOT_FOUND"         // 404
	ErrAlreadyExists    ErrorCode = "ALREADY_EXISTS"    // 409
	ErrRateLimit        ErrorCode = "RATE_LIMIT"        // 429
	ErrExtractionFailed ErrorCode = "EXTRACTION_FAILED" // 502
	ErrTimeout          ErrorCode = "TIMEOUT"           // 504
	ErrStorage          ErrorCode = "STORAGE_ERROR"     // 500
	ErrInternal         ErrorCode = "INTERNAL"          // 500
)

// FacetError represents a structured error with code, status, and details.
// Cause holds the underlying failure, if any; it is never rendered to callers.
type FacetError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *FacetError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *FacetError) Unwrap() error {
	return e.Cause
}

// FieldError describes one failed validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewValidation creates a 400 error for input that failed validation.
func NewValidation(msg string, fields ...FieldError) *FacetError {
	e := &FacetError{
		Code:    ErrValidation,
		Status:  400,
		Message: msg,
	}
	if len(fields) > 0 {
		e.Details = map[string]any{"fields": fields}
	}
	return e
}

// NewNotFound creates a 404 error for a missing persona or metadata object.
func NewNotFound(what, id string) *FacetError {
	return &FacetError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", what, id),
		Details: map[string]any{"identifier": id},
	}
}

// NewAlreadyExists creates a 409 error when a persona id is already taken.
func NewAlreadyExists(id string) *FacetError {
	return &FacetError{
		Code:    ErrAlreadyExists,
		Status:  409,
		Message: fmt.Sprintf("persona already exists: %s", id),
		Details: map[string]any{"identifier": id},
	}
}

// NewRateLimit creates a 429 error for upstream throttling.
func NewRateLimit(msg string, cause error) *FacetError {
	if msg == "" {
		msg = "inference backend rate limit exceeded; try again shortly"
	}
	return &FacetError{
		Code:    ErrRateLimit,
		Status:  429,
		Message: msg,
		Cause:   cause,
	}
}

// NewTimeout creates a 504 error for a slow or unavailable upstream.
func NewTimeout(msg string, cause error) *FacetError {
	if msg == "" {
		msg = "inference backend is temporarily unavailable; try again shortly"
	}
	return &FacetError{
		Code:    ErrTimeout,
		Status:  504,
		Message: msg,
		Cause:   cause,
	}
}

// NewExtractionFailed creates a 502 error for empty or malformed model output.
func NewExtractionFailed(msg string, details map[string]any, cause error) *FacetError {
	return &FacetError{
		Code:    ErrExtractionFailed,
		Status:  502,
		Message: msg,
		Details: details,
		Cause:   cause,
	}
}

// NewStorage creates a 500 error for a storage back-end failure.
func NewStorage(msg string, cause error) *FacetError {
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return &FacetError{
		Code:    ErrStorage,
		Status:  500,
		Message: msg,
		Cause:   cause,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *FacetError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &FacetError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		Cause:   err,
	}
}

// WithDetail returns e after setting a details entry.
func (e *FacetError) WithDetail(key string, value any) *FacetError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// As returns the first FacetError in err's chain.
func As(err error) (*FacetError, bool) {
	var fErr *FacetError
	if stderrors.As(err, &fErr) {
		return fErr, true
	}
	return nil, false
}

// Is checks if an error is a FacetError with the given code.
func Is(err error, code ErrorCode) bool {
	if fErr, ok := As(err); ok {
		return fErr.Code == code
	}
	return false
}

// From returns err as a FacetError, wrapping anything unclassified as internal.
func From(err error) *FacetError {
	if err == nil {
		return nil
	}
	if fErr, ok := As(err); ok {
		return fErr
	}
	return NewInternal(err)
}
