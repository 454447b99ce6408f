// Package apperr defines the per-request error taxonomy of the engine.
package apperr

import "fmt"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AppError carries a stable code, an operator-facing message and a
// caller-facing message. No error kind is fatal to the process.
type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        "E100",
		Message:     msg,
		UserMessage: fmt.Sprintf("Invalid request. %s", msg),
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

// NewUnauthenticated is returned before any store is touched when the caller
// presents no identity.
func NewUnauthenticated() *AppError {
	return &AppError{
		Code:        "E101",
		Message:     "request has no authenticated identity",
		UserMessage: "You must be signed in to run a lookup",
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

// NewBanned is returned when an active ban exists for the user. It is lifted
// only by deactivating the moderation record.
func NewBanned(userID string) *AppError {
	return &AppError{
		Code:        "E102",
		Message:     fmt.Sprintf("user %s has an active ban", userID),
		UserMessage: "Your account is suspended. Contact support",
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

// NewQuotaExhausted is an expected outcome, not a fault: the daily credit
// allowance ran out and replenishes at the next reset.
func NewQuotaExhausted(userID string) *AppError {
	return &AppError{
		Code:        "E103",
		Message:     fmt.Sprintf("user %s has no credits remaining", userID),
		UserMessage: "Daily lookup limit reached. Try again after the reset",
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

// NewForbidden covers role-hierarchy violations on the administrative path.
func NewForbidden(msg string) *AppError {
	return &AppError{
		Code:        "E104",
		Message:     msg,
		UserMessage: "You are not allowed to perform this action",
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

// NewUnavailable wraps a store failure. The engine fails closed on these:
// the metered operation is denied, and no credit has been spent, so callers
// may retry the whole request.
func NewUnavailable(component string, cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        "E200",
		Message:     fmt.Sprintf("%s unavailable: %s", component, underlyingMsg),
		UserMessage: "Service temporarily unavailable, try again shortly",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}
