// Package agenterrors defines the failure taxonomy shared by the transport
// client, the orchestrator, and the API layer, plus the retry policy and
// the input validator that raise errors in that taxonomy.
package agenterrors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Code classifies a failure
type Code string

// Error codes
const (
	// CodeExecutionTimeout means polling exceeded the configured bound
	CodeExecutionTimeout Code = "EXECUTION_TIMEOUT"

	// CodeValidation means caller-supplied input violated a declared rule
	CodeValidation Code = "VALIDATION_ERROR"

	// CodeWebhook means the engine answered with a non-2xx status
	CodeWebhook Code = "WEBHOOK_ERROR"

	// CodeNetwork means the engine was unreachable
	CodeNetwork Code = "NETWORK_ERROR"

	// CodeAgentNotFound means the requested agent doesn't exist
	CodeAgentNotFound Code = "AGENT_NOT_FOUND"

	// CodeAgentUnavailable means the requested agent is disabled
	CodeAgentUnavailable Code = "AGENT_UNAVAILABLE"

	// CodeUnknown is the catch-all for unclassified failures
	CodeUnknown Code = "UNKNOWN_ERROR"
)

// Error is a classified failure
type Error struct {
	// Code is the taxonomy classification
	Code Code

	// Message describes the failure
	Message string

	// Details carries structured diagnostic payload, if any
	Details interface{}

	// HTTPStatus is the engine's response status, when one was received
	HTTPStatus int

	// Err is the wrapped cause, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error with a code and message
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a code and a formatted message
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewWithStatus creates an error that records the engine's HTTP status
func NewWithStatus(code Code, message string, status int) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: status}
}

// Wrap creates an error around an underlying cause
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// CodeOf extracts the taxonomy code from any error. Wrapped taxonomy
// errors yield their code; context cancellation and deadline expiry are
// timeouts; everything else is unknown.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CodeExecutionTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return CodeNetwork
	}
	return CodeUnknown
}

// Is reports whether err carries the given code
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// Normalize maps any error into the taxonomy. Typed errors pass through
// unchanged; everything else is wrapped so no opaque error escapes the
// subsystem.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(CodeExecutionTimeout, "operation timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Wrap(CodeNetwork, "network failure", err)
	}
	return Wrap(CodeUnknown, err.Error(), err)
}

// userMessages maps codes to messages suitable for end users
var userMessages = map[Code]string{
	CodeExecutionTimeout: "The agent took too long to respond. Please try again.",
	CodeNetwork:          "Could not reach the agent service. Check your connection and try again.",
	CodeWebhook:          "The agent service rejected the request. It may be offline or misconfigured.",
	CodeAgentNotFound:    "The requested agent does not exist.",
	CodeAgentUnavailable: "The requested agent is currently disabled.",
}

// UserMessage renders an error for end users: the fixed per-code message
// when one exists, otherwise the error's own message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	normalized := Normalize(err)
	if msg, ok := userMessages[normalized.Code]; ok {
		return msg
	}
	return normalized.Message
}
