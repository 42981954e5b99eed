package router

import (
	"fmt"
	"time"
)

// ErrorKind classifies a router failure for retry and HTTP mapping decisions.
type ErrorKind string

const (
	// ErrorKindAuth means the JWT was rejected. Never retried.
	ErrorKindAuth ErrorKind = "auth_error"
	// ErrorKindBudget means the agent's spending budget is exhausted.
	ErrorKindBudget ErrorKind = "budget_exceeded"
	// ErrorKindRateLimit means the router throttled the request.
	ErrorKindRateLimit ErrorKind = "rate_limit"
	// ErrorKindTransport covers network failures and 5xx responses.
	ErrorKindTransport ErrorKind = "transport_error"
)

// Error is a classified failure from the model router.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string

	// RetryAfter is the server-advised wait for rate-limit errors, zero when
	// the router gave no hint.
	RetryAfter time.Duration

	Err error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("router %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("router %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could succeed. Auth and budget
// failures are terminal until an operator intervenes.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case ErrorKindRateLimit, ErrorKindTransport:
		return true
	default:
		return false
	}
}

func newError(kind ErrorKind, statusCode int, message string, err error) *Error {
	return &Error{Kind: kind, StatusCode: statusCode, Message: message, Err: err}
}
