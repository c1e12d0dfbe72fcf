package audit

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrClosed        = errors.New("audit log is closed")
	ErrInvalidDriver = errors.New("invalid audit driver")
	ErrMissingDSN    = errors.New("audit dsn is required")
)

// ErrorType classifies database failures.
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeConfiguration
	ErrorTypeConnection
	ErrorTypeQuery
	ErrorTypeSchema
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeConfiguration:
		return "configuration"
	case ErrorTypeConnection:
		return "connection"
	case ErrorTypeQuery:
		return "query"
	case ErrorTypeSchema:
		return "schema"
	default:
		return "unknown"
	}
}

// DatabaseError provides detailed information about audit store failures
type DatabaseError struct {
	Type      ErrorType
	Operation string
	Message   string
	Cause     error
	Retryable bool
}

func (e *DatabaseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}

func (e *DatabaseError) Unwrap() error {
	return e.Cause
}

func newError(t ErrorType, operation, message string, cause error) *DatabaseError {
	return &DatabaseError{
		Type:      t,
		Operation: operation,
		Message:   message,
		Cause:     cause,
		Retryable: retryable(t, cause),
	}
}

func configurationError(operation, message string, cause error) *DatabaseError {
	return newError(ErrorTypeConfiguration, operation, message, cause)
}

func connectionError(operation, message string, cause error) *DatabaseError {
	return newError(ErrorTypeConnection, operation, message, cause)
}

func queryError(operation, message string, cause error) *DatabaseError {
	return newError(ErrorTypeQuery, operation, message, cause)
}

func schemaError(operation, message string, cause error) *DatabaseError {
	return newError(ErrorTypeSchema, operation, message, cause)
}

func retryable(t ErrorType, cause error) bool {
	switch t {
	case ErrorTypeConnection:
		return true
	case ErrorTypeQuery:
		if cause == nil {
			return false
		}
		msg := strings.ToLower(cause.Error())
		return strings.Contains(msg, "timeout") || strings.Contains(msg, "busy") ||
			strings.Contains(msg, "locked")
	default:
		return false
	}
}

// IsRetryable reports whether err is a DatabaseError worth retrying.
func IsRetryable(err error) bool {
	var dbErr *DatabaseError
	return errors.As(err, &dbErr) && dbErr.Retryable
}
