package audit

import (
	"time"

	"github.com/ziadkadry99/actiongate/internal/callback"
)

// Entry is a single audit trail record: one redemption attempt,
// allowed or denied, and its outcome.
type Entry struct {
	ID         string           `json:"id"`
	Timestamp  time.Time        `json:"timestamp"`
	Token      string           `json:"token"`
	GraphType  string           `json:"graph_type"`
	Handler    string           `json:"handler"`
	UserID     string           `json:"user_id"`
	Outcome    callback.Outcome `json:"outcome"`
	Error      string           `json:"error,omitempty"`
	DurationMs int64            `json:"duration_ms"`
}
