package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Embed is the subset of the Discord embed object used for alerts.
// See: https://discord.com/developers/docs/resources/channel#embed-object-embed-structure
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

type EmbedFooter struct {
	Text string `json:"text,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// WebhookPayload is the JSON body for Discord webhooks.
type WebhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// DefaultTimeout bounds a single webhook post.
const DefaultTimeout = 8 * time.Second

// Client posts webhook payloads.
type Client struct {
	HTTP *http.Client
}

// NewClient returns a client with DefaultTimeout.
func NewClient() *Client {
	return &Client{HTTP: &http.Client{Timeout: DefaultTimeout}}
}

// Post sends payload to webhookURL and returns the HTTP status code.
// An empty URL is a no-op. Non-2xx responses are reported as errors.
func (c *Client) Post(ctx context.Context, webhookURL string, payload WebhookPayload) (int, error) {
	webhookURL = strings.TrimSpace(webhookURL)
	if webhookURL == "" {
		return 0, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(b))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	client := c.HTTP
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("discord webhook returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// NewEmbed creates an embed stamped with the given time in RFC3339 format.
func NewEmbed(title, description string, color int, footer string, at time.Time) Embed {
	return Embed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   at.UTC().Format(time.RFC3339),
		Footer:      &EmbedFooter{Text: footer},
	}
}
