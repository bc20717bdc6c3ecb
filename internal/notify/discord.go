package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
)

// Discord posts messages to a Discord webhook as a single embed.
type Discord struct {
	webhookURL string
	httpClient *http.Client
	clock      clockwork.Clock
}

// NewDiscord creates a Discord webhook channel. A nil clock uses real time.
func NewDiscord(webhookURL string, timeout time.Duration, clock clockwork.Clock) *Discord {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Discord{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
		clock:      clock,
	}
}

func (d *Discord) Name() string { return "discord" }

// Send posts the message as an embed colored by priority.
func (d *Discord) Send(ctx context.Context, msg Message) error {
	payload := webhookPayload{Embeds: []embed{{
		Title:       msg.title(),
		Description: msg.Body,
		Color:       msg.priority().Color(),
		Timestamp:   d.clock.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
	}}}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord error: status %d: %s", resp.StatusCode, body)
	}
	return nil
}

// Discord webhook request types.

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}
