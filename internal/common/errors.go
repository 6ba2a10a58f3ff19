package common

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// CodeConfig marks configuration failures, fatal at startup.
const CodeConfig = "CONFIG_ERROR"

// ErrConfiguration matches every error built by NewConfigError.
var ErrConfiguration = errors.New("invalid configuration")

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError builds the fatal configuration error. It always matches ErrConfiguration.
func NewConfigError(message string, cause error) *AppError {
	if cause == nil {
		cause = ErrConfiguration
	} else if !errors.Is(cause, ErrConfiguration) {
		cause = fmt.Errorf("%w: %w", ErrConfiguration, cause)
	}
	return NewAppError(CodeConfig, message, cause)
}

// IsConfigError reports whether err is (or wraps) a configuration failure.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

func FailedPreconditionError(message string) error {
	return status.Error(codes.FailedPrecondition, message)
}

func InternalErrorf(format string, args ...interface{}) error {
	return InternalError(fmt.Sprintf(format, args...))
}
