package protocol

import (
	"errors"
	"fmt"
)

// Error codes surfaced in response envelopes. RATE_LIMIT_EXCEEDED is the
// 429-equivalent; UPSTREAM_ENGINE_FAILURE is an opaque pass-through from
// the automation engine.
const (
	CodePoolExhausted     = "POOL_EXHAUSTED"
	CodeSessionNotFound   = "SESSION_NOT_FOUND"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeDomainNotAllowed  = "DOMAIN_NOT_ALLOWED"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeTeamIDRequired    = "TEAM_ID_REQUIRED"
	CodeTeamIDMismatch    = "TEAM_ID_MISMATCH"
	CodeUnknownOperation  = "UNKNOWN_OPERATION"
	CodeUpstreamFailure   = "UPSTREAM_ENGINE_FAILURE"
	CodeInternal          = "INTERNAL_ERROR"
)

// Error is a code-bearing error that survives wrapping. The Code maps
// directly onto the envelope's error.code field.
type Error struct {
	Code    string
	Message string
	Inner   error
}

func (e *Error) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Inner)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Inner }

// NewError builds a taxonomy error with the given code.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError builds a taxonomy error preserving the underlying cause.
func WrapError(code, message string, inner error) *Error {
	return &Error{Code: code, Message: message, Inner: inner}
}

// AsError extracts the taxonomy error from an error chain, or nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// IsCode reports whether err carries the given taxonomy code.
func IsCode(err error, code string) bool {
	e := AsError(err)
	return e != nil && e.Code == code
}

// NewPoolExhausted signals that all pool slots are occupied. There is no
// queuing; callers retry externally if they want to.
func NewPoolExhausted(maxInstances int) *Error {
	return NewError(CodePoolExhausted, fmt.Sprintf("browser pool exhausted (%d instances in use)", maxInstances))
}

// NewSessionNotFound signals an unknown browserId. The message is part of
// the external contract and must not change.
func NewSessionNotFound(browserID string) *Error {
	return &Error{Code: CodeSessionNotFound, Message: "Browser session not found", Inner: fmt.Errorf("browserId %q", browserID)}
}

// NewInvalidInput signals malformed arguments for an operation.
func NewInvalidInput(message string) *Error {
	return NewError(CodeInvalidInput, message)
}

// NewDomainNotAllowed signals a navigation target outside the allowlist.
func NewDomainNotAllowed(host string) *Error {
	return NewError(CodeDomainNotAllowed, fmt.Sprintf("domain %q is not in the allowed domains list", host))
}

// NewRateLimitExceeded signals that the tenant's fixed window is full.
func NewRateLimitExceeded(teamID string, limit int) *Error {
	return NewError(CodeRateLimitExceeded, fmt.Sprintf("rate limit exceeded for team %q (%d requests per window)", teamID, limit))
}

// NewTeamIDRequired signals that no tenant id could be resolved for a
// tenant-scoped operation.
func NewTeamIDRequired() *Error {
	return NewError(CodeTeamIDRequired, "team id is required for this operation")
}

// NewTeamIDMismatch signals a call naming a different tenant than the one
// the session is bound to.
func NewTeamIDMismatch(browserID string) *Error {
	return NewError(CodeTeamIDMismatch, fmt.Sprintf("browser session %q belongs to a different team", browserID))
}

// NewUnknownOperation signals a name outside the dispatch table.
func NewUnknownOperation(name string) *Error {
	return NewError(CodeUnknownOperation, fmt.Sprintf("unknown operation %q", name))
}

// NewUpstreamFailure wraps an automation-engine error without interpreting it.
func NewUpstreamFailure(op string, inner error) *Error {
	return WrapError(CodeUpstreamFailure, fmt.Sprintf("%s failed: %v", op, inner), inner)
}
