// Package metrics records redemption counters and handler latency via
// OpenTelemetry. Recording is side-effect only: it never blocks or
// alters a redemption outcome.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ziadkadry99/actiongate/internal/callback"
)

// Recorder holds the instruments for the dispatch pipeline.
type Recorder struct {
	attempts  metric.Int64Counter
	successes metric.Int64Counter
	failures  metric.Int64Counter
	denials   metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewRecorder creates the instruments on the given meter.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	attempts, err := meter.Int64Counter("callback.attempts",
		metric.WithDescription("Redemption attempts, including denied ones"))
	if err != nil {
		return nil, fmt.Errorf("creating attempts counter: %w", err)
	}
	successes, err := meter.Int64Counter("callback.successes",
		metric.WithDescription("Redemptions that completed successfully"))
	if err != nil {
		return nil, fmt.Errorf("creating successes counter: %w", err)
	}
	failures, err := meter.Int64Counter("callback.failures",
		metric.WithDescription("Redemptions whose handler failed"))
	if err != nil {
		return nil, fmt.Errorf("creating failures counter: %w", err)
	}
	denials, err := meter.Int64Counter("callback.denials",
		metric.WithDescription("Redemptions denied before handler execution"))
	if err != nil {
		return nil, fmt.Errorf("creating denials counter: %w", err)
	}
	duration, err := meter.Float64Histogram("callback.handler.duration",
		metric.WithDescription("Handler execution time"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	return &Recorder{
		attempts:  attempts,
		successes: successes,
		failures:  failures,
		denials:   denials,
		duration:  duration,
	}, nil
}

func attrs(graphType, handler string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("graph_type", graphType),
		attribute.String("handler", handler),
	)
}

// Attempt counts one redemption attempt.
func (r *Recorder) Attempt(ctx context.Context, graphType, handler string) {
	if r == nil {
		return
	}
	r.attempts.Add(ctx, 1, attrs(graphType, handler))
}

// Success counts a completed redemption and records handler latency.
func (r *Recorder) Success(ctx context.Context, graphType, handler string, d time.Duration) {
	if r == nil {
		return
	}
	r.successes.Add(ctx, 1, attrs(graphType, handler))
	r.duration.Record(ctx, float64(d.Milliseconds()), attrs(graphType, handler))
}

// Failure counts a handler failure and records handler latency.
func (r *Recorder) Failure(ctx context.Context, graphType, handler string, d time.Duration) {
	if r == nil {
		return
	}
	r.failures.Add(ctx, 1, attrs(graphType, handler))
	r.duration.Record(ctx, float64(d.Milliseconds()), attrs(graphType, handler))
}

// Denial counts a redemption denied before handler execution.
func (r *Recorder) Denial(ctx context.Context, graphType, handler string, outcome callback.Outcome) {
	if r == nil {
		return
	}
	r.denials.Add(ctx, 1, metric.WithAttributes(
		attribute.String("graph_type", graphType),
		attribute.String("handler", handler),
		attribute.String("outcome", string(outcome)),
	))
}
