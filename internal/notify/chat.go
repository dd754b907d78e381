package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Chat message severities understood by the chat-ops webhook.
const (
	SeverityRed   = "red"
	SeverityGreen = "green"
)

const defaultChatTimeout = 10 * time.Second

// ChatMessage is one chat-ops post.
type ChatMessage struct {
	Channel  string `json:"channel"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Severity string `json:"severity"`
}

// ChatPoster delivers chat-ops messages. Implementations are best-effort;
// the returned error is for logging, not control flow.
type ChatPoster interface {
	PostMessage(ctx context.Context, message ChatMessage) error
}

// WebhookChatPoster posts chat messages to an HTTP webhook as JSON.
type WebhookChatPoster struct {
	webhookURL string
	httpClient *http.Client
}

// NewWebhookChatPoster wires a webhook-backed chat poster.
func NewWebhookChatPoster(webhookURL string, httpClient *http.Client) *WebhookChatPoster {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultChatTimeout}
	}
	return &WebhookChatPoster{webhookURL: webhookURL, httpClient: httpClient}
}

// PostMessage sends the message to the webhook.
func (poster *WebhookChatPoster) PostMessage(ctx context.Context, message ChatMessage) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode chat message: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, poster.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build chat request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	response, err := poster.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("post chat message: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("post chat message: unexpected status %d", response.StatusCode)
	}
	return nil
}
