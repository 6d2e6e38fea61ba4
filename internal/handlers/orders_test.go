package handlers

import (
	"context"
	"testing"

	"github.com/ziadkadry99/actiongate/internal/callback"
)

func TestOrdersBundleRegisters(t *testing.T) {
	reg := callback.NewRegistry()
	if err := callback.RegisterBundles(reg, Orders{}); err != nil {
		t.Fatalf("RegisterBundles() error = %v", err)
	}
	if reg.Len() != 2 {
		t.Errorf("registry has %d handlers, want 2", reg.Len())
	}
	for _, name := range []string{"approve-order", "reject-order"} {
		if _, ok := reg.Get("orders", name); !ok {
			t.Errorf("handler %q not registered", name)
		}
	}
}

func TestApproveOrder(t *testing.T) {
	reg := callback.NewRegistry()
	if err := callback.RegisterBundles(reg, Orders{}); err != nil {
		t.Fatalf("RegisterBundles() error = %v", err)
	}
	fn, _ := reg.Get("orders", "approve-order")

	out, err := fn(context.Background(), callback.HandlerContext{
		UserID: "user-1",
		Params: map[string]any{"order_id": "ORD-1"},
	})
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}

	decision, ok := out.(orderDecision)
	if !ok {
		t.Fatalf("handler returned %T, want orderDecision", out)
	}
	if decision.Decision != "approved" {
		t.Errorf("decision = %q, want %q", decision.Decision, "approved")
	}
	if decision.OrderID != "ORD-1" {
		t.Errorf("order id = %q, want %q", decision.OrderID, "ORD-1")
	}
	if decision.DecidedBy != "user-1" {
		t.Errorf("decided by = %q, want %q", decision.DecidedBy, "user-1")
	}
}

func TestRejectOrderMissingParam(t *testing.T) {
	reg := callback.NewRegistry()
	if err := callback.RegisterBundles(reg, Orders{}); err != nil {
		t.Fatalf("RegisterBundles() error = %v", err)
	}
	fn, _ := reg.Get("orders", "reject-order")

	if _, err := fn(context.Background(), callback.HandlerContext{UserID: "user-1"}); err == nil {
		t.Error("handler accepted missing order_id")
	}
}
