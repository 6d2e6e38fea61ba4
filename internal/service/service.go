// Package service owns the redemption lifecycle around the router: it
// resolves each routing outcome into a store transition and an
// operator-facing response.
package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/ziadkadry99/actiongate/internal/callback"
	"github.com/ziadkadry99/actiongate/internal/events"
)

// Dispatcher runs the per-redemption pipeline. *router.Router satisfies it.
type Dispatcher interface {
	Route(ctx context.Context, rec *callback.Record, userID string) (callback.Result, error)
}

// Response is the terminal answer for one redemption attempt.
type Response struct {
	callback.Result

	Outcome    callback.Outcome `json:"outcome"`
	RetryAfter time.Duration    `json:"-"`
}

// Service handles locked records end to end. Handle never returns an
// error: every failure mode resolves to a Response with an outcome.
type Service struct {
	store  callback.Store
	router Dispatcher
	hub    *events.Hub
}

// New creates a Service. The hub may be nil.
func New(store callback.Store, router Dispatcher, hub *events.Hub) *Service {
	return &Service{store: store, router: router, hub: hub}
}

// Handle dispatches a locked record and settles it in the store.
//
// Success finalizes the record. Handler errors, missing handlers and
// denials move the record to failed so an explicit retry can re-arm it;
// the one exception is a duplicate, where the winning attempt owns the
// record and this attempt must not touch it. A duplicate whose winner
// already completed answers with the cached result as a success.
func (s *Service) Handle(ctx context.Context, rec *callback.Record, userID string) Response {
	res, err := s.router.Route(ctx, rec, userID)
	if err == nil {
		if ferr := s.store.Finalize(ctx, rec.Token); ferr != nil {
			log.Printf("service: finalizing %s: %v", rec.Token, ferr)
		}
		return s.publish(rec, userID, Response{Result: res, Outcome: callback.OutcomeSuccess})
	}

	outcome := callback.OutcomeOf(err)
	resp := Response{
		Result:  callback.Result{Error: err.Error()},
		Outcome: outcome,
	}

	var dup *callback.DuplicateError
	if errors.As(err, &dup) {
		// The winning attempt owns the record's lifecycle.
		if dup.State == callback.DuplicateCompleted && len(dup.CachedResult) > 0 {
			resp.Result = callback.Result{Success: true, Data: dup.CachedResult}
		}
		return s.publish(rec, userID, resp)
	}

	var rle *callback.RateLimitedError
	if errors.As(err, &rle) {
		resp.RetryAfter = rle.RetryAfter
	}

	if _, ferr := s.store.Fail(ctx, rec.Token, err.Error()); ferr != nil {
		log.Printf("service: failing %s: %v", rec.Token, ferr)
	}
	return s.publish(rec, userID, resp)
}

func (s *Service) publish(rec *callback.Record, userID string, resp Response) Response {
	s.hub.Publish(events.Event{
		Token:     rec.Token,
		GraphType: rec.GraphType,
		Handler:   rec.Handler,
		UserID:    userID,
		Outcome:   resp.Outcome,
		Error:     resp.Result.Error,
	})
	return resp
}
