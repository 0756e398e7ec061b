package screening

import (
	"errors"
	"fmt"
)

// ValidationError is a rejected caller action. The session is left unchanged.
type ValidationError struct {
	// Code identifies the error category.
	Code ValidationErrorCode

	// Field names the offending input, when there is one.
	Field string

	// Message is a human-readable description.
	Message string
}

// ValidationErrorCode categorizes validation failures.
type ValidationErrorCode string

const (
	// ErrCodeMissingSubjectID indicates neither a QR nor a manual ID was given.
	ErrCodeMissingSubjectID ValidationErrorCode = "MISSING_SUBJECT_ID"

	// ErrCodeMissingName indicates the subject name is empty.
	ErrCodeMissingName ValidationErrorCode = "MISSING_NAME"

	// ErrCodeEmptySkipReason indicates a skip without a reason.
	ErrCodeEmptySkipReason ValidationErrorCode = "EMPTY_SKIP_REASON"

	// ErrCodeUnknownStep indicates a value outside Steps.
	ErrCodeUnknownStep ValidationErrorCode = "UNKNOWN_STEP"

	// ErrCodeUnskippableStep indicates a skip of identification or review.
	ErrCodeUnskippableStep ValidationErrorCode = "UNSKIPPABLE_STEP"

	// ErrCodeInvalidValue indicates a patch field outside its schema.
	ErrCodeInvalidValue ValidationErrorCode = "INVALID_VALUE"

	// ErrCodeIdentityMismatch indicates a correction that changes the subject ID.
	ErrCodeIdentityMismatch ValidationErrorCode = "IDENTITY_MISMATCH"

	// ErrCodeNoActiveSubject indicates a mutation before a subject was identified.
	ErrCodeNoActiveSubject ValidationErrorCode = "NO_ACTIVE_SUBJECT"

	// ErrCodeUnknownField indicates an analysis target the session does not have.
	ErrCodeUnknownField ValidationErrorCode = "UNKNOWN_FIELD"
)

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsValidation reports whether err is a ValidationError.
// Uses errors.As to handle wrapped errors.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// HasCode reports whether err is a ValidationError with the given code.
func HasCode(err error, code ValidationErrorCode) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code == code
	}
	return false
}

func invalid(code ValidationErrorCode, field, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}
