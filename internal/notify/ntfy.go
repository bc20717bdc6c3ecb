package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ntfy publishes plain-text messages to an ntfy topic.
type Ntfy struct {
	server     string
	topic      string
	token      string
	httpClient *http.Client
}

// NewNtfy creates an ntfy channel for server/topic. token is optional.
func NewNtfy(server, topic, token string, timeout time.Duration) *Ntfy {
	return &Ntfy{
		server:     strings.TrimRight(server, "/"),
		topic:      topic,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (n *Ntfy) Name() string { return "ntfy" }

// Send posts the message body with title, priority and tags as headers.
func (n *Ntfy) Send(ctx context.Context, msg Message) error {
	u := fmt.Sprintf("%s/%s", n.server, n.topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Title", msg.title())
	req.Header.Set("Priority", string(msg.priority()))
	if len(msg.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.Tags, ","))
	}
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ntfy request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ntfy error: status %d: %s", resp.StatusCode, body)
	}
	return nil
}
