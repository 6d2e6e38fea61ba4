package patch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ziadkadry99/actiongate/internal/callback"
)

const slackAPIURL = "https://slack.com/api"

// SlackPatcher updates the originating Slack message via chat.update,
// replacing the action buttons with the redemption outcome.
type SlackPatcher struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewSlackPatcher creates a SlackPatcher using the given bot token.
func NewSlackPatcher(token string) *SlackPatcher {
	return &SlackPatcher{
		token:   token,
		baseURL: slackAPIURL,
		client:  newHTTPClient(),
	}
}

// Channel implements Patcher.
func (p *SlackPatcher) Channel() string { return "slack" }

// slackUpdate is the chat.update request payload.
type slackUpdate struct {
	Channel string `json:"channel"`
	TS      string `json:"ts"`
	Text    string `json:"text"`
}

// slackUpdateResponse is the subset of the chat.update reply we check.
type slackUpdateResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Patch implements Patcher.
func (p *SlackPatcher) Patch(ctx context.Context, rec *callback.Record, res callback.Result) error {
	if rec.Metadata.ChannelID == "" || rec.Metadata.MessageID == "" {
		return fmt.Errorf("record metadata is missing slack channel or message id")
	}

	payload, err := json.Marshal(slackUpdate{
		Channel: rec.Metadata.ChannelID,
		TS:      rec.Metadata.MessageID,
		Text:    statusLine(rec, res),
	})
	if err != nil {
		return fmt.Errorf("marshalling slack update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/chat.update", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending slack update: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack update returned status %d", resp.StatusCode)
	}

	var out slackUpdateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decoding slack response: %w", err)
	}
	if !out.OK {
		return fmt.Errorf("slack update failed: %s", out.Error)
	}
	return nil
}
