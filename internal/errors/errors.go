package errors

import (
	"errors"
	"fmt"
)

// Code is a wire-level error identifier. The string values appear verbatim in
// `error` frames and in the `error` field of `http_response` frames, so they
// are lower_snake and must stay stable.
type Code string

const (
	// Liveness
	CodeNodeNotConnected Code = "node_not_connected"
	CodeNodeDisconnected Code = "node_disconnected"
	CodeTimeout          Code = "timeout"

	// Capacity / backpressure
	CodeTooManyPending Code = "too_many_pending"
	CodeRateLimited    Code = "rate_limited"

	// Protocol
	CodeIDInUse         Code = "id_in_use"
	CodeMessageTooLarge Code = "message_too_large"

	// Authentication
	CodeInvalidOrExpired Code = "invalid_or_expired"

	// Internal
	CodeRelayError Code = "relay_error"
)

// AppError is a structured error carrying a wire code
type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// New creates a new AppError
func New(code Code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code Code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func NodeNotConnected(nodeID string) *AppError {
	return New(CodeNodeNotConnected, fmt.Sprintf("node %q is not connected", nodeID))
}

func NodeDisconnected() *AppError {
	return New(CodeNodeDisconnected, "node disconnected while the request was in flight")
}

func Timeout() *AppError {
	return New(CodeTimeout, "no response before the request deadline")
}

func TooManyPending(limit int) *AppError {
	return New(CodeTooManyPending, fmt.Sprintf("pending request limit (%d) reached for this node", limit))
}

func RateLimited() *AppError {
	return New(CodeRateLimited, "too many redemption attempts; try again later")
}

func IDInUse(id string) *AppError {
	return New(CodeIDInUse, fmt.Sprintf("request id %q is already pending", id))
}

func MessageTooLarge(limit int64) *AppError {
	return New(CodeMessageTooLarge, fmt.Sprintf("payload exceeds the %d byte limit", limit))
}

func InvalidOrExpired() *AppError {
	return New(CodeInvalidOrExpired, "invalid or expired code or token")
}

func Relay(message string) *AppError {
	return New(CodeRelayError, message)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the wire code for err, falling back to relay_error for
// anything that is not an AppError
func CodeOf(err error) Code {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return CodeRelayError
}
