package callback

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a callback record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusFailed     Status = "failed"
)

// DefaultTTL is applied when an entry does not specify its own TTL.
const DefaultTTL = 600 * time.Second

// Metadata carries issuance-time settings alongside a record.
type Metadata struct {
	TTLSec     int      `json:"ttl_sec,omitempty"`
	Channel    string   `json:"channel,omitempty"`
	ChannelID  string   `json:"channel_id,omitempty"`
	MessageID  string   `json:"message_id,omitempty"`
	ServiceURL string   `json:"service_url,omitempty"`
	PatchURL   string   `json:"patch_url,omitempty"`
	SharedWith []string `json:"shared_with,omitempty"`
}

// TTL returns the record time-to-live, falling back to DefaultTTL.
func (m Metadata) TTL() time.Duration {
	if m.TTLSec > 0 {
		return time.Duration(m.TTLSec) * time.Second
	}
	return DefaultTTL
}

// Entry describes a callback to be issued.
type Entry struct {
	GraphType string         `json:"graph_type"`
	Handler   string         `json:"handler"`
	UserID    string         `json:"user_id"`
	Params    map[string]any `json:"params,omitempty"`
	Metadata  Metadata       `json:"metadata"`
}

// Record is one issued callback as stored. Only a Store mutates Status,
// Retries and LastError.
type Record struct {
	Token     string         `json:"token"`
	GraphType string         `json:"graph_type"`
	Handler   string         `json:"handler"`
	UserID    string         `json:"user_id"`
	Params    map[string]any `json:"params,omitempty"`
	Status    Status         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	Retries   int            `json:"retries"`
	LastError string         `json:"last_error,omitempty"`
	Metadata  Metadata       `json:"metadata"`
}

// Result is the caller-visible outcome of one redemption attempt.
type Result struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}
