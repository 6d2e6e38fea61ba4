// Package ratelimit bounds redemption attempts per identity and window.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter checks whether an identity may attempt another redemption.
// Implementations must be safe under concurrent callers; shared-store
// implementations must update their counters atomically at the store.
type Limiter interface {
	Check(ctx context.Context, identity string) (Decision, error)
}
