// Package router runs the per-redemption pipeline: rate limit, access
// control, idempotency reservation, handler lookup and invocation, then
// audit, metrics and message patching.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ziadkadry99/actiongate/internal/acl"
	"github.com/ziadkadry99/actiongate/internal/audit"
	"github.com/ziadkadry99/actiongate/internal/callback"
	"github.com/ziadkadry99/actiongate/internal/idempotency"
	"github.com/ziadkadry99/actiongate/internal/metrics"
	"github.com/ziadkadry99/actiongate/internal/ratelimit"
)

// Auditor records one entry per redemption attempt. *audit.Store
// satisfies it.
type Auditor interface {
	Log(ctx context.Context, entry audit.Entry) error
}

// Patcher updates the originating message after a redemption.
// *patch.Dispatcher satisfies it.
type Patcher interface {
	Patch(ctx context.Context, rec *callback.Record, res callback.Result) error
}

// Router dispatches locked records to their handlers. All collaborators
// except Registry are optional; a nil field skips that stage.
type Router struct {
	Registry *callback.Registry
	Limiter  ratelimit.Limiter
	Policy   acl.Policy
	Idem     idempotency.Manager
	Audit    Auditor
	Metrics  *metrics.Recorder
	Patch    Patcher

	now func() time.Time
}

// New creates a Router around the given registry.
func New(reg *callback.Registry) *Router {
	return &Router{Registry: reg, now: time.Now}
}

// Route runs the full pipeline for a locked record. The checks run in a
// fixed order and the first denial wins: rate limit, then access
// control, then idempotency. A denial returns a zero Result and a typed
// error; the handler is never reached. Route never mutates the store.
func (rt *Router) Route(ctx context.Context, rec *callback.Record, userID string) (callback.Result, error) {
	rt.Metrics.Attempt(ctx, rec.GraphType, rec.Handler)
	start := rt.clock()

	if rt.Limiter != nil {
		dec, err := rt.Limiter.Check(ctx, userID)
		if err != nil {
			return rt.deny(ctx, rec, userID, start, fmt.Errorf("rate limit check: %w", err))
		}
		if !dec.Allowed {
			return rt.deny(ctx, rec, userID, start, &callback.RateLimitedError{RetryAfter: dec.RetryAfter})
		}
	}

	if rt.Policy != nil {
		if err := rt.Policy.Authorize(rec, userID); err != nil {
			return rt.deny(ctx, rec, userID, start, err)
		}
	}

	reserved := false
	if rt.Idem != nil {
		resv, err := rt.Idem.Reserve(ctx, rec.Token)
		if err != nil {
			return rt.deny(ctx, rec, userID, start, fmt.Errorf("idempotency reserve: %w", err))
		}
		if !resv.First {
			return rt.deny(ctx, rec, userID, start, &callback.DuplicateError{
				State:        resv.State,
				CachedResult: resv.Result,
			})
		}
		reserved = true
	}

	fn, ok := rt.Registry.Get(rec.GraphType, rec.Handler)
	if !ok {
		rt.release(ctx, rec.Token, reserved)
		return rt.deny(ctx, rec, userID, start, &callback.HandlerNotFoundError{
			GraphType: rec.GraphType,
			Handler:   rec.Handler,
		})
	}

	out, err := fn(ctx, callback.HandlerContext{
		Token:     rec.Token,
		GraphType: rec.GraphType,
		Handler:   rec.Handler,
		UserID:    userID,
		Params:    rec.Params,
		Metadata:  rec.Metadata,
	})
	if err != nil {
		rt.release(ctx, rec.Token, reserved)
		return rt.fail(ctx, rec, userID, start, &callback.HandlerError{Err: err})
	}

	data, err := json.Marshal(out)
	if err != nil {
		rt.release(ctx, rec.Token, reserved)
		return rt.fail(ctx, rec, userID, start, &callback.HandlerError{Err: fmt.Errorf("encoding result: %w", err)})
	}

	res := callback.Result{Success: true, Data: data}

	if rt.Idem != nil {
		if err := rt.Idem.Complete(ctx, rec.Token, data); err != nil {
			log.Printf("router: completing idempotency record for %s: %v", rec.Token, err)
		}
	}

	elapsed := rt.clock().Sub(start)
	rt.Metrics.Success(ctx, rec.GraphType, rec.Handler, elapsed)
	rt.logAudit(ctx, rec, userID, callback.OutcomeSuccess, "", elapsed)

	if rt.Patch != nil {
		if err := rt.Patch.Patch(ctx, rec, res); err != nil {
			log.Printf("router: patching message for %s: %v", rec.Token, err)
		}
	}

	return res, nil
}

// release gives a held reservation back when the attempt ends without a
// result, so an explicit retry can reserve the token again.
func (rt *Router) release(ctx context.Context, token string, reserved bool) {
	if !reserved {
		return
	}
	if err := rt.Idem.Release(ctx, token); err != nil {
		log.Printf("router: releasing reservation for %s: %v", token, err)
	}
}

// deny audits a pre-handler denial and returns the typed error unchanged.
func (rt *Router) deny(ctx context.Context, rec *callback.Record, userID string, start time.Time, cause error) (callback.Result, error) {
	outcome := callback.OutcomeOf(cause)
	rt.Metrics.Denial(ctx, rec.GraphType, rec.Handler, outcome)
	rt.logAudit(ctx, rec, userID, outcome, cause.Error(), rt.clock().Sub(start))
	return callback.Result{}, cause
}

func (rt *Router) fail(ctx context.Context, rec *callback.Record, userID string, start time.Time, cause *callback.HandlerError) (callback.Result, error) {
	elapsed := rt.clock().Sub(start)
	rt.Metrics.Failure(ctx, rec.GraphType, rec.Handler, elapsed)
	rt.logAudit(ctx, rec, userID, callback.OutcomeHandlerError, cause.Error(), elapsed)
	return callback.Result{}, cause
}

func (rt *Router) logAudit(ctx context.Context, rec *callback.Record, userID string, outcome callback.Outcome, errMsg string, elapsed time.Duration) {
	if rt.Audit == nil {
		return
	}
	if err := rt.Audit.Log(ctx, audit.Entry{
		Token:      rec.Token,
		GraphType:  rec.GraphType,
		Handler:    rec.Handler,
		UserID:     userID,
		Outcome:    outcome,
		Error:      errMsg,
		DurationMs: elapsed.Milliseconds(),
	}); err != nil {
		log.Printf("router: writing audit entry for %s: %v", rec.Token, err)
	}
}

func (rt *Router) clock() time.Time {
	if rt.now != nil {
		return rt.now()
	}
	return time.Now()
}
