package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// ErrorType classifies fatal errors by how the process should exit.
type ErrorType string

const (
	ErrorTypeConfig    ErrorType = "CONFIG_ERROR"
	ErrorTypeTransport ErrorType = "TRANSPORT_ERROR"
	ErrorTypeVerdict   ErrorType = "VERDICT_FAIL"
)

// Exit codes returned by the command.
const (
	ExitOK          = 0
	ExitConfig      = 1
	ExitTransport   = 2
	ExitFail        = 3
	ExitInterrupted = 130
)

// AppError represents an application error with additional context.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

func New(errType ErrorType, message string) *AppError {
	return &AppError{Type: errType, Message: message}
}

func Wrap(err error, errType ErrorType, message string) *AppError {
	return &AppError{Type: errType, Message: message, Err: err}
}

// NewConfigError creates a configuration error.
func NewConfigError(format string, args ...interface{}) *AppError {
	return New(ErrorTypeConfig, fmt.Sprintf(format, args...))
}

// WrapConfigError wraps err as a configuration error.
func WrapConfigError(err error, message string) *AppError {
	return Wrap(err, ErrorTypeConfig, message)
}

// WrapTransportError wraps a socket level failure.
func WrapTransportError(err error, message string) *AppError {
	return Wrap(err, ErrorTypeTransport, message)
}

// GetAppError finds the first AppError in err's chain.
func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType reports whether err's chain carries an AppError of the given type.
func IsType(err error, errType ErrorType) bool {
	appErr, ok := GetAppError(err)
	return ok && appErr.Type == errType
}

// ExitCode maps an error chain to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if stderrors.Is(err, context.Canceled) {
		return ExitInterrupted
	}
	appErr, ok := GetAppError(err)
	if !ok {
		return ExitTransport
	}
	switch appErr.Type {
	case ErrorTypeConfig:
		return ExitConfig
	case ErrorTypeVerdict:
		return ExitFail
	default:
		return ExitTransport
	}
}
