package errors

import (
	"fmt"
	"time"
)

// BlackboxError is the canonical error type returned from core recorder
// paths.
type BlackboxError struct {
	// Code is the machine-readable error code.
	Code Code `json:"code"`

	// Message is a user-safe description.
	Message string `json:"message"`

	// Cause is the underlying error, if any.
	Cause error `json:"-"`

	// Context carries structured diagnostic fields (e.g. the offending key,
	// the chain index, the sample of duplicate PK values).
	Context map[string]any `json:"context,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	Retryable bool      `json:"retryable"`
}

func (e *BlackboxError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *BlackboxError) Unwrap() error { return e.Cause }

// WithCause attaches an underlying error.
func (e *BlackboxError) WithCause(cause error) *BlackboxError {
	e.Cause = cause
	return e
}

// WithContext adds a single diagnostic field.
func (e *BlackboxError) WithContext(key string, value any) *BlackboxError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// New creates a BlackboxError with the given code and message.
func New(code Code, message string) *BlackboxError {
	return &BlackboxError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Retryable: code.IsRetryable(),
	}
}

// Newf creates a BlackboxError with a formatted message.
func Newf(code Code, format string, args ...any) *BlackboxError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps err as a BlackboxError. If err is already one, it is returned
// unchanged.
func Wrap(err error, code Code, message string) *BlackboxError {
	if err == nil {
		return nil
	}
	if be, ok := err.(*BlackboxError); ok {
		return be
	}
	return New(code, message).WithCause(err)
}

// Is reports whether err is a BlackboxError carrying the given code.
func Is(err error, code Code) bool {
	be, ok := err.(*BlackboxError)
	return ok && be.Code == code
}

// CodeOf extracts the code from err, or CodeUnknown if it is not a
// BlackboxError.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if be, ok := err.(*BlackboxError); ok {
		return be.Code
	}
	return CodeUnknown
}
