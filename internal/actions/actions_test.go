package actions

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ziadkadry99/actiongate/internal/callback"
)

func TestIssueAll(t *testing.T) {
	store := callback.NewMemoryStore()
	issuer := NewIssuer(store, 0)

	buttons, err := issuer.IssueAll(context.Background(), Request{
		GraphType: "orders",
		UserID:    "user-1",
		Actions: []Definition{
			{Label: "Approve", Handler: "approve-order", Params: map[string]any{"order_id": "ORD-1"}, Style: "primary"},
			{Label: "Reject", Handler: "reject-order", Params: map[string]any{"order_id": "ORD-1"}, Style: "danger"},
		},
	})
	if err != nil {
		t.Fatalf("IssueAll() error = %v", err)
	}
	if len(buttons) != 2 {
		t.Fatalf("IssueAll() returned %d buttons, want 2", len(buttons))
	}

	for _, b := range buttons {
		if !strings.HasPrefix(b.Token, "cb::orders::") {
			t.Errorf("token %q lacks cb::orders:: prefix", b.Token)
		}
		rec, err := store.GetAndLock(context.Background(), b.Token)
		if err != nil {
			t.Fatalf("GetAndLock(%q) error = %v", b.Token, err)
		}
		if rec.UserID != "user-1" {
			t.Errorf("record UserID = %q, want %q", rec.UserID, "user-1")
		}
	}
	if buttons[0].Token == buttons[1].Token {
		t.Error("both buttons share one token")
	}
}

func TestIssueAllValidation(t *testing.T) {
	issuer := NewIssuer(callback.NewMemoryStore(), 0)
	ctx := context.Background()

	cases := []struct {
		name string
		req  Request
	}{
		{"missing graph type", Request{UserID: "u", Actions: []Definition{{Handler: "h"}}}},
		{"missing user", Request{GraphType: "orders", Actions: []Definition{{Handler: "h"}}}},
		{"no actions", Request{GraphType: "orders", UserID: "u"}},
		{"action without handler", Request{GraphType: "orders", UserID: "u", Actions: []Definition{{Label: "x"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := issuer.IssueAll(ctx, tc.req); err == nil {
				t.Error("IssueAll() accepted invalid request")
			}
		})
	}
}

func TestIssueAllAppliesTTL(t *testing.T) {
	store := callback.NewMemoryStore()
	issuer := NewIssuer(store, 0)

	buttons, err := issuer.IssueAll(context.Background(), Request{
		GraphType: "orders",
		UserID:    "user-1",
		TTLSec:    120,
		Actions:   []Definition{{Label: "Approve", Handler: "approve-order"}},
	})
	if err != nil {
		t.Fatalf("IssueAll() error = %v", err)
	}

	rec, err := store.GetAndLock(context.Background(), buttons[0].Token)
	if err != nil {
		t.Fatalf("GetAndLock() error = %v", err)
	}
	if rec.Metadata.TTLSec != 120 {
		t.Errorf("metadata TTLSec = %d, want 120", rec.Metadata.TTLSec)
	}
}

func TestIssueAllAppliesDefaultTTL(t *testing.T) {
	store := callback.NewMemoryStore()
	issuer := NewIssuer(store, 30*time.Second)

	issue := func(t *testing.T, req Request) *callback.Record {
		t.Helper()
		buttons, err := issuer.IssueAll(context.Background(), req)
		if err != nil {
			t.Fatalf("IssueAll() error = %v", err)
		}
		rec, err := store.GetAndLock(context.Background(), buttons[0].Token)
		if err != nil {
			t.Fatalf("GetAndLock() error = %v", err)
		}
		return rec
	}

	rec := issue(t, Request{
		GraphType: "orders",
		UserID:    "user-1",
		Actions:   []Definition{{Label: "Approve", Handler: "approve-order"}},
	})
	if rec.Metadata.TTLSec != 30 {
		t.Errorf("metadata TTLSec = %d, want the issuer default of 30", rec.Metadata.TTLSec)
	}

	// An explicit TTL still wins over the issuer default.
	rec = issue(t, Request{
		GraphType: "orders",
		UserID:    "user-1",
		TTLSec:    120,
		Actions:   []Definition{{Label: "Approve", Handler: "approve-order"}},
	})
	if rec.Metadata.TTLSec != 120 {
		t.Errorf("metadata TTLSec = %d, want the explicit 120", rec.Metadata.TTLSec)
	}
}
