// Package idempotency collapses duplicate concurrent redemption
// attempts for one token. It exists in addition to the store's own
// pending→processing lock to cover caller-side retries that race the
// lock boundary.
package idempotency

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ziadkadry99/actiongate/internal/callback"
)

// DefaultResultTTL bounds how long a cached result stays available to
// duplicate callers after completion.
const DefaultResultTTL = 10 * time.Minute

// Reservation reports whether the caller is the first to attempt this
// token. For duplicates it carries the winner's state and, when the
// winner already completed, its cached result.
type Reservation struct {
	First  bool
	State  callback.DuplicateState
	Result json.RawMessage
}

// Manager reserves tokens for execution. Reserve must be atomic at the
// store level: of any number of concurrent callers, exactly one
// receives First. Release discards an unfinished reservation so a
// retried token can be reserved again; it never disturbs a completed
// reservation's cached result.
type Manager interface {
	Reserve(ctx context.Context, token string) (*Reservation, error)
	Complete(ctx context.Context, token string, result json.RawMessage) error
	Release(ctx context.Context, token string) error
}
