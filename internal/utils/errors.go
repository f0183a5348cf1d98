package utils

import (
	"fmt"

	"github.com/onemirror/onemirror/internal/types"
)

// Exit codes
const (
	ExitSuccess = 0
	// Auth errors (10-19)
	ExitAuthRequired = 10
	ExitAuthExpired  = 11
	// Transfer errors (20-29)
	ExitNotFound         = 20
	ExitPermissionDenied = 21
	ExitSizeMismatch     = 22
	ExitExhaustedRetries = 23
	ExitInvalidState     = 24
	// Network errors (30-39)
	ExitTransientAPI = 30
	ExitRateLimited  = 31
	// Validation errors (40-49)
	ExitInvalidArgument = 40
	// Cancellation
	ExitCancelled = 50
	// Unknown
	ExitUnknown = 99
)

// Error codes (tool-owned, stable)
const (
	ErrCodeAuthRequired     = "AUTH_REQUIRED"
	ErrCodeAuthExpired      = "AUTH_EXPIRED"
	ErrCodeTransientAPI     = "TRANSIENT_API"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeSizeMismatch     = "SIZE_MISMATCH"
	ErrCodeExhaustedRetries = "EXHAUSTED_RETRIES"
	ErrCodeInvalidState     = "INVALID_STATE"
	ErrCodeInvalidArgument  = "INVALID_ARGUMENT"
	ErrCodeCancelled        = "CANCELLED"
	ErrCodeUnknown          = "UNKNOWN"
)

// CLIErrorBuilder helps construct CLIError instances
type CLIErrorBuilder struct {
	err types.CLIError
}

// NewCLIError creates a new error builder
func NewCLIError(code, message string) *CLIErrorBuilder {
	return &CLIErrorBuilder{
		err: types.CLIError{
			Code:    code,
			Message: message,
		},
	}
}

func (b *CLIErrorBuilder) WithHTTPStatus(status int) *CLIErrorBuilder {
	b.err.HTTPStatus = status
	return b
}

func (b *CLIErrorBuilder) WithGraphCode(code string) *CLIErrorBuilder {
	b.err.GraphCode = code
	return b
}

func (b *CLIErrorBuilder) WithRetryable(retryable bool) *CLIErrorBuilder {
	b.err.Retryable = retryable
	return b
}

func (b *CLIErrorBuilder) WithContext(key string, value interface{}) *CLIErrorBuilder {
	if b.err.Context == nil {
		b.err.Context = make(map[string]interface{})
	}
	b.err.Context[key] = value
	return b
}

func (b *CLIErrorBuilder) Build() types.CLIError {
	return b.err
}

// GetExitCode returns the exit code for an error code
func GetExitCode(errorCode string) int {
	mapping := map[string]int{
		ErrCodeAuthRequired:     ExitAuthRequired,
		ErrCodeAuthExpired:      ExitAuthExpired,
		ErrCodeTransientAPI:     ExitTransientAPI,
		ErrCodeRateLimited:      ExitRateLimited,
		ErrCodePermissionDenied: ExitPermissionDenied,
		ErrCodeNotFound:         ExitNotFound,
		ErrCodeSizeMismatch:     ExitSizeMismatch,
		ErrCodeExhaustedRetries: ExitExhaustedRetries,
		ErrCodeInvalidState:     ExitInvalidState,
		ErrCodeInvalidArgument:  ExitInvalidArgument,
		ErrCodeCancelled:        ExitCancelled,
	}
	if code, ok := mapping[errorCode]; ok {
		return code
	}
	return ExitUnknown
}

// AppError is a custom error type that carries CLI error info
type AppError struct {
	CLIError types.CLIError
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.CLIError.Code, e.CLIError.Message)
}

// NewAppError creates an AppError from a CLIError
func NewAppError(cliErr types.CLIError) *AppError {
	return &AppError{CLIError: cliErr}
}

// CodeOf extracts the stable error code from an error, or ErrCodeUnknown.
func CodeOf(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.CLIError.Code
	}
	return ErrCodeUnknown
}
