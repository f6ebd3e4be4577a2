package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Webhook posts a JSON body {<field>: text} to a chat webhook URL.
type Webhook struct {
	name   string
	url    string
	field  string
	client *http.Client
}

// NewSlackWebhook posts {"text": ...} to an incoming Slack webhook.
func NewSlackWebhook(url string, client *http.Client) *Webhook {
	return newWebhook("slack", url, "text", client)
}

// NewDiscordWebhook posts {"content": ...} to a Discord webhook.
func NewDiscordWebhook(url string, client *http.Client) *Webhook {
	return newWebhook("discord", url, "content", client)
}

func newWebhook(name, url, field string, client *http.Client) *Webhook {
	if client == nil {
		client = http.DefaultClient
	}
	return &Webhook{name: name, url: url, field: field, client: client}
}

func (w *Webhook) Name() string { return w.name }

func (w *Webhook) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(map[string]string{w.field: msg.Text})
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
