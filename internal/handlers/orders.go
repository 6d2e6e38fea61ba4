// Package handlers ships the built-in handler bundles registered by the
// server command.
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/ziadkadry99/actiongate/internal/callback"
)

// Orders is the order-approval bundle.
type Orders struct{}

// GraphType returns the graph type the bundle serves.
func (Orders) GraphType() string { return "orders" }

// Handlers lists the bundle's handlers.
func (o Orders) Handlers() []callback.NamedHandler {
	return []callback.NamedHandler{
		{Name: "approve-order", Fn: o.approve},
		{Name: "reject-order", Fn: o.reject},
	}
}

type orderDecision struct {
	OrderID   string    `json:"order_id"`
	Decision  string    `json:"decision"`
	DecidedBy string    `json:"decided_by"`
	DecidedAt time.Time `json:"decided_at"`
}

func (Orders) approve(ctx context.Context, hc callback.HandlerContext) (any, error) {
	return decide(hc, "approved")
}

func (Orders) reject(ctx context.Context, hc callback.HandlerContext) (any, error) {
	return decide(hc, "rejected")
}

func decide(hc callback.HandlerContext, decision string) (any, error) {
	orderID, ok := hc.Params["order_id"].(string)
	if !ok || orderID == "" {
		return nil, fmt.Errorf("missing order_id parameter")
	}
	return orderDecision{
		OrderID:   orderID,
		Decision:  decision,
		DecidedBy: hc.UserID,
		DecidedAt: time.Now().UTC(),
	}, nil
}
