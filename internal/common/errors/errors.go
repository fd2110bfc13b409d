// Package errors provides the failure taxonomy for the dispatch pipeline.
// Every delivery failure is classified as either transient (retryable,
// subject to the backoff schedule) or permanent (routed to dead-letter).
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodePermanentFailure   ErrorCode = "PERMANENT_FAILURE"
	ErrCodeNoSenderAvailable  ErrorCode = "NO_SENDER_AVAILABLE"
	ErrCodeRecipientMissing   ErrorCode = "RECIPIENT_MISSING"
	ErrCodeAuthenticationFail ErrorCode = "AUTHENTICATION_FAILED"
	ErrCodeProviderError      ErrorCode = "PROVIDER_ERROR"
	ErrCodeProviderTimeout    ErrorCode = "PROVIDER_TIMEOUT"
	ErrCodeValidationFailed   ErrorCode = "VALIDATION_FAILED"
	ErrCodeRetriesExhausted   ErrorCode = "RETRIES_EXHAUSTED"
)

// SendError is a classified delivery failure. Permanent failures bypass
// retry entirely; everything else is retried up to the notification's
// maxRetries ceiling.
type SendError struct {
	Code      ErrorCode
	Message   string
	Permanent bool
	Cause     error
	Timestamp time.Time
}

func (e *SendError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SendError) Unwrap() error {
	return e.Cause
}

// Transient creates a retryable delivery failure.
func Transient(code ErrorCode, message string, cause error) *SendError {
	return &SendError{
		Code:      code,
		Message:   message,
		Permanent: false,
		Cause:     cause,
		Timestamp: time.Now().UTC(),
	}
}

// Transientf creates a retryable delivery failure with a formatted message.
func Transientf(code ErrorCode, format string, args ...interface{}) *SendError {
	return Transient(code, fmt.Sprintf(format, args...), nil)
}

// Permanent creates a non-retryable delivery failure.
func Permanent(code ErrorCode, message string, cause error) *SendError {
	return &SendError{
		Code:      code,
		Message:   message,
		Permanent: true,
		Cause:     cause,
		Timestamp: time.Now().UTC(),
	}
}

// Permanentf creates a non-retryable delivery failure with a formatted message.
func Permanentf(code ErrorCode, format string, args ...interface{}) *SendError {
	return Permanent(code, fmt.Sprintf(format, args...), nil)
}

// IsPermanent reports whether err is classified as a permanent failure.
// Unclassified errors are not permanent: the conservative default is to
// retry rather than silently drop.
func IsPermanent(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Permanent
	}
	return false
}

// IsTransient reports whether err should be retried. Any error that is not
// explicitly permanent counts as transient, including unclassified ones.
func IsTransient(err error) bool {
	return err != nil && !IsPermanent(err)
}

// CodeOf extracts the error code, defaulting to PROVIDER_ERROR for
// unclassified errors.
func CodeOf(err error) ErrorCode {
	var se *SendError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeProviderError
}

// MessageOf extracts the human-readable failure message without the code
// prefix, falling back to Error() for unclassified errors.
func MessageOf(err error) string {
	var se *SendError
	if errors.As(err, &se) {
		if se.Cause != nil {
			return fmt.Sprintf("%s: %v", se.Message, se.Cause)
		}
		return se.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
