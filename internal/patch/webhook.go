package patch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ziadkadry99/actiongate/internal/callback"
)

// WebhookPatcher POSTs the redemption outcome to the patch URL named in
// the record metadata, for surfaces that subscribe to outcome updates
// rather than exposing a message-edit API.
type WebhookPatcher struct {
	client *http.Client
}

// NewWebhookPatcher creates a WebhookPatcher.
func NewWebhookPatcher() *WebhookPatcher {
	return &WebhookPatcher{client: newHTTPClient()}
}

// Channel implements Patcher.
func (p *WebhookPatcher) Channel() string { return "webhook" }

// webhookPayload is the outcome notification body.
type webhookPayload struct {
	Token     string          `json:"token"`
	GraphType string          `json:"graph_type"`
	Handler   string          `json:"handler"`
	Result    callback.Result `json:"result"`
}

// Patch implements Patcher.
func (p *WebhookPatcher) Patch(ctx context.Context, rec *callback.Record, res callback.Result) error {
	if rec.Metadata.PatchURL == "" {
		return fmt.Errorf("record metadata is missing patch url")
	}

	payload, err := json.Marshal(webhookPayload{
		Token:     rec.Token,
		GraphType: rec.GraphType,
		Handler:   rec.Handler,
		Result:    res,
	})
	if err != nil {
		return fmt.Errorf("marshalling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		rec.Metadata.PatchURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
