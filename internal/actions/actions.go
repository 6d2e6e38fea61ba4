// Package actions turns application-defined action definitions into
// redeemable button payloads. It owns only the token inside each
// button; how the embedding surface renders the button is up to the
// caller.
package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/ziadkadry99/actiongate/internal/callback"
)

// Definition describes one user-facing action to issue.
type Definition struct {
	Label   string         `json:"label"`
	Handler string         `json:"handler"`
	Params  map[string]any `json:"params,omitempty"`
	Style   string         `json:"style,omitempty"`
}

// Button is an issued action: the definition plus its redemption token.
type Button struct {
	Label string `json:"label"`
	Token string `json:"token"`
	Style string `json:"style,omitempty"`
}

// Request issues a set of actions against one graph type for one user.
type Request struct {
	GraphType string            `json:"graph_type"`
	UserID    string            `json:"user_id"`
	TTLSec    int               `json:"ttl_sec,omitempty"`
	Metadata  callback.Metadata `json:"metadata,omitzero"`
	Actions   []Definition      `json:"actions"`
}

// Issuer mints tokens for action definitions.
type Issuer struct {
	store      callback.Store
	defaultTTL time.Duration
}

// NewIssuer creates an Issuer over the given store. Entries without an
// explicit TTL are issued under defaultTTL; zero defers to the store's
// own fallback.
func NewIssuer(store callback.Store, defaultTTL time.Duration) *Issuer {
	return &Issuer{store: store, defaultTTL: defaultTTL}
}

// IssueAll mints one token per definition. Definitions are validated
// up front so a bad one fails the whole request before any token is
// minted.
func (i *Issuer) IssueAll(ctx context.Context, req Request) ([]Button, error) {
	if req.GraphType == "" {
		return nil, fmt.Errorf("graph type is required")
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if len(req.Actions) == 0 {
		return nil, fmt.Errorf("at least one action is required")
	}
	for n, def := range req.Actions {
		if def.Handler == "" {
			return nil, fmt.Errorf("action %d has no handler", n)
		}
	}

	meta := req.Metadata
	if req.TTLSec > 0 {
		meta.TTLSec = req.TTLSec
	}
	if meta.TTLSec <= 0 && i.defaultTTL > 0 {
		meta.TTLSec = int(i.defaultTTL / time.Second)
	}

	buttons := make([]Button, 0, len(req.Actions))
	for _, def := range req.Actions {
		token, err := i.store.Issue(ctx, callback.Entry{
			GraphType: req.GraphType,
			Handler:   def.Handler,
			UserID:    req.UserID,
			Params:    def.Params,
			Metadata:  meta,
		})
		if err != nil {
			return nil, fmt.Errorf("issuing %q: %w", def.Handler, err)
		}
		buttons = append(buttons, Button{
			Label: def.Label,
			Token: token,
			Style: def.Style,
		})
	}
	return buttons, nil
}
