package callback

import "context"

// Store is the sole source of truth for record lifecycle. Every
// implementation must guarantee at most one concurrent redeemer per
// token: GetAndLock performs the pending→processing transition as a
// single atomic store-side operation.
//
// All operations report absent, expired, finalized, or unparseable
// records as ErrNotFound.
type Store interface {
	// Issue persists a new pending record under the entry's TTL and
	// returns its token.
	Issue(ctx context.Context, entry Entry) (string, error)

	// Get returns an unexpired record without changing its state.
	Get(ctx context.Context, token string) (*Record, error)

	// GetAndLock atomically transitions a pending record to processing
	// and returns it. Records in any other state are ErrNotFound.
	GetAndLock(ctx context.Context, token string) (*Record, error)

	// Fail marks a record failed, increments its retry count, and
	// records message as the last error.
	Fail(ctx context.Context, token, message string) (*Record, error)

	// Retry moves a failed record back to pending. The retry count is
	// preserved.
	Retry(ctx context.Context, token string) (*Record, error)

	// Finalize deletes the record. Idempotent; finalizing an absent
	// token is not an error.
	Finalize(ctx context.Context, token string) error
}
