package callback

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by stores for tokens that are absent, expired,
// already locked, finalized, or whose stored state cannot be parsed.
// Corrupted state is deliberately indistinguishable from absence.
var ErrNotFound = errors.New("callback not found")

// Outcome classifies the result of a redemption attempt. Outcomes are
// recorded in audit entries and metrics, and mapped to HTTP statuses at
// the transport boundary.
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeNotFound        Outcome = "not_found"
	OutcomeUnauthorized    Outcome = "unauthorized"
	OutcomeRateLimited     Outcome = "rate_limited"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeHandlerNotFound Outcome = "handler_not_found"
	OutcomeHandlerError    Outcome = "handler_error"
)

// UnauthorizedError is an access-control denial.
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string {
	return "unauthorized: " + e.Reason
}

// RateLimitedError is a rate-limiter denial.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// DuplicateState describes what a duplicate redemption raced against.
type DuplicateState string

const (
	DuplicateInProgress DuplicateState = "in_progress"
	DuplicateCompleted  DuplicateState = "completed"
)

// DuplicateError signals that a redemption attempt lost the idempotency
// reservation. CachedResult is set when the winning attempt already
// completed and its result is still available.
type DuplicateError struct {
	State        DuplicateState
	CachedResult json.RawMessage
}

func (e *DuplicateError) Error() string {
	return "callback already " + string(e.State)
}

// HandlerNotFoundError is a configuration defect: the record names a
// handler that was never registered. It is never retried automatically.
type HandlerNotFoundError struct {
	GraphType string
	Handler   string
}

func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("no handler %q registered for graph type %q", e.Handler, e.GraphType)
}

// HandlerError wraps an error returned by the application handler.
type HandlerError struct {
	Err error
}

func (e *HandlerError) Error() string { return e.Err.Error() }

func (e *HandlerError) Unwrap() error { return e.Err }

// OutcomeOf maps an error from the routing pipeline to its outcome.
// A nil error is a success.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	var (
		unauthorized *UnauthorizedError
		rateLimited  *RateLimitedError
		duplicate    *DuplicateError
		noHandler    *HandlerNotFoundError
	)
	switch {
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.As(err, &unauthorized):
		return OutcomeUnauthorized
	case errors.As(err, &rateLimited):
		return OutcomeRateLimited
	case errors.As(err, &duplicate):
		return OutcomeDuplicate
	case errors.As(err, &noHandler):
		return OutcomeHandlerNotFound
	default:
		return OutcomeHandlerError
	}
}
