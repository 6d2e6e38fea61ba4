// Package patch reflects a resolved redemption back to the surface
// that offered the action, e.g. by updating the originating message.
// Patching is best-effort: a patch failure never unwinds an otherwise
// successful redemption.
package patch

import (
	"context"
	"net/http"
	"time"

	"github.com/ziadkadry99/actiongate/internal/callback"
)

// Patcher applies the post-redemption side effect for one channel family.
type Patcher interface {
	Channel() string
	Patch(ctx context.Context, rec *callback.Record, res callback.Result) error
}

// Dispatcher selects a Patcher by the record's channel metadata.
// Records without a channel, or with a channel no patcher claims, are
// left untouched.
type Dispatcher struct {
	patchers map[string]Patcher
}

// NewDispatcher creates a Dispatcher over the given patchers.
func NewDispatcher(patchers ...Patcher) *Dispatcher {
	d := &Dispatcher{patchers: make(map[string]Patcher, len(patchers))}
	for _, p := range patchers {
		d.patchers[p.Channel()] = p
	}
	return d
}

// Patch implements Patcher-like dispatch over all registered channels.
func (d *Dispatcher) Patch(ctx context.Context, rec *callback.Record, res callback.Result) error {
	p, ok := d.patchers[rec.Metadata.Channel]
	if !ok {
		return nil
	}
	return p.Patch(ctx, rec, res)
}

// newHTTPClient is the shared client configuration for all patchers.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// statusLine renders the outcome text shown on the patched surface.
func statusLine(rec *callback.Record, res callback.Result) string {
	if res.Success {
		return "✅ " + rec.Handler + " completed"
	}
	if res.Error != "" {
		return "⚠️ " + rec.Handler + " failed: " + res.Error
	}
	return "⚠️ " + rec.Handler + " failed"
}
