package types

import "fmt"

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// Request and conversion error codes
const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"
	ErrUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	ErrDecodeError       ErrorCode = "DECODE_ERROR"
	ErrEmptyScene        ErrorCode = "EMPTY_SCENE"
	ErrEmptyMesh         ErrorCode = "EMPTY_MESH"
	ErrExportError       ErrorCode = "EXPORT_ERROR"
	ErrManifestInvalid   ErrorCode = "MANIFEST_INVALID"
	ErrNotFound          ErrorCode = "NOT_FOUND"
)

// Upstream fetch error codes
const (
	ErrFetchTimeout  ErrorCode = "FETCH_TIMEOUT"
	ErrUpstreamError ErrorCode = "UPSTREAM_ERROR"
	ErrAssetTooLarge ErrorCode = "ASSET_TOO_LARGE"
)

// Access and infrastructure error codes
const (
	ErrAuthentication     ErrorCode = "AUTHENTICATION"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrForbidden          ErrorCode = "FORBIDDEN"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Source     string    `json:"source,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithSource sets the upstream source host the error originated from.
func (e *Error) WithSource(source string) *Error {
	e.Source = source
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
