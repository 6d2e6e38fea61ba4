package patch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ziadkadry99/actiongate/internal/callback"
)

// TeamsPatcher replaces the originating Teams activity through the Bot
// Framework connector API on the record's service URL.
type TeamsPatcher struct {
	client *http.Client
}

// NewTeamsPatcher creates a TeamsPatcher.
func NewTeamsPatcher() *TeamsPatcher {
	return &TeamsPatcher{client: newHTTPClient()}
}

// Channel implements Patcher.
func (p *TeamsPatcher) Channel() string { return "teams" }

// teamsActivity is the replacement activity payload.
type teamsActivity struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Patch implements Patcher.
func (p *TeamsPatcher) Patch(ctx context.Context, rec *callback.Record, res callback.Result) error {
	if rec.Metadata.ServiceURL == "" || rec.Metadata.ChannelID == "" || rec.Metadata.MessageID == "" {
		return fmt.Errorf("record metadata is missing teams addressing fields")
	}

	payload, err := json.Marshal(teamsActivity{
		Type: "message",
		Text: statusLine(rec, res),
	})
	if err != nil {
		return fmt.Errorf("marshalling teams activity: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v3/conversations/%s/activities/%s",
		rec.Metadata.ServiceURL,
		url.PathEscape(rec.Metadata.ChannelID),
		url.PathEscape(rec.Metadata.MessageID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating teams request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending teams update: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("teams update returned status %d", resp.StatusCode)
	}
	return nil
}
