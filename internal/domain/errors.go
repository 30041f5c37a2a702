package domain

import (
	"errors"
	"fmt"
)

// DomainError carries a stable code alongside a human-readable message.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError with the same code, so wrapped errors
// compare equal to the package sentinels.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

const (
	ErrCodeInvalidConfiguration  = "INVALID_CONFIGURATION"
	ErrCodeIndexMissing          = "INDEX_MISSING"
	ErrCodeIndexCorrupt          = "INDEX_CORRUPT"
	ErrCodeGenerationUnavailable = "GENERATION_UNAVAILABLE"
)

var (
	// ErrInvalidConfiguration is returned for unusable chunking or pipeline parameters.
	ErrInvalidConfiguration = NewDomainError(ErrCodeInvalidConfiguration, "invalid configuration")
	// ErrIndexMissing is returned when no snapshot has been built or an artifact is absent.
	ErrIndexMissing = NewDomainError(ErrCodeIndexMissing, "index missing, build the index first")
	// ErrIndexCorrupt is returned when the persisted artifacts disagree with each other
	// or with the active embedding model.
	ErrIndexCorrupt = NewDomainError(ErrCodeIndexCorrupt, "index corrupt")
	// ErrGenerationUnavailable never leaves the synthesis package; it is reported
	// to logs and telemetry when the fallback path is taken.
	ErrGenerationUnavailable = NewDomainError(ErrCodeGenerationUnavailable, "generation unavailable")
)

// InvalidConfiguration builds an ErrInvalidConfiguration-class error with detail.
func InvalidConfiguration(format string, args ...any) error {
	return NewDomainError(ErrCodeInvalidConfiguration, fmt.Sprintf(format, args...))
}

// IndexMissing wraps cause as an ErrIndexMissing-class error.
func IndexMissing(message string, cause error) error {
	return NewDomainErrorWithCause(ErrCodeIndexMissing, message, cause)
}

// IndexCorrupt builds an ErrIndexCorrupt-class error with detail.
func IndexCorrupt(format string, args ...any) error {
	return NewDomainError(ErrCodeIndexCorrupt, fmt.Sprintf(format, args...))
}

// GenerationUnavailable wraps cause as an ErrGenerationUnavailable-class error.
func GenerationUnavailable(message string, cause error) error {
	return NewDomainErrorWithCause(ErrCodeGenerationUnavailable, message, cause)
}

// Code extracts the domain code from err, or "" when err is not a DomainError.
func Code(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
