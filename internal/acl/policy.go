// Package acl authorizes a requesting user against a callback record.
package acl

import (
	"github.com/ziadkadry99/actiongate/internal/callback"
)

// Policy decides whether a user may redeem a record. A denial is a
// *callback.UnauthorizedError; any other error is an internal failure.
type Policy interface {
	Authorize(rec *callback.Record, userID string) error
}

// OwnerPolicy permits only the user the record was issued to.
type OwnerPolicy struct{}

// Authorize implements Policy.
func (OwnerPolicy) Authorize(rec *callback.Record, userID string) error {
	if userID == "" {
		return &callback.UnauthorizedError{Reason: "missing user identity"}
	}
	if rec.UserID != userID {
		return &callback.UnauthorizedError{Reason: "user does not own this action"}
	}
	return nil
}

// SharedPolicy permits the issuing user plus anyone listed in the
// record's shared_with metadata.
type SharedPolicy struct{}

// Authorize implements Policy.
func (SharedPolicy) Authorize(rec *callback.Record, userID string) error {
	if userID == "" {
		return &callback.UnauthorizedError{Reason: "missing user identity"}
	}
	if rec.UserID == userID {
		return nil
	}
	for _, shared := range rec.Metadata.SharedWith {
		if shared == userID {
			return nil
		}
	}
	return &callback.UnauthorizedError{Reason: "user is not allowed to redeem this action"}
}
