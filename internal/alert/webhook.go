// Package alert implements spike detection, heartbeat batching, and
// alert delivery over webhook and email channels.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// allowedWebhookPrefix is the provider host pattern outbound webhooks
// must match. Anything else is skipped with a log entry, never an error.
const allowedWebhookPrefix = "https://discord.com/api/webhooks/"

// Embed colors, matching the provider's decimal RGB convention.
const (
	colorRed    = 15158332
	colorBlue   = 3447003
	colorGreen  = 3066993
	colorOrange = 16733952
)

// EmbedField is one named value inside a webhook embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedFooter struct {
	Text string `json:"text"`
}

// Embed is a single rich card in a webhook payload.
type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp"`
}

// WebhookPayload is the body POSTed to the configured webhook URL.
type WebhookPayload struct {
	Username string  `json:"username"`
	Embeds   []Embed `json:"embeds"`
}

// ValidWebhookURL reports whether the URL matches the provider allow-list.
func ValidWebhookURL(url string) bool {
	return strings.HasPrefix(url, allowedWebhookPrefix)
}

// WebhookSender delivers a payload to a webhook URL.
type WebhookSender interface {
	Send(ctx context.Context, url string, payload WebhookPayload) error
}

// WebhookClient posts payloads to the provider with a short timeout and
// a token-bucket gate so alert bursts cannot hammer the channel.
type WebhookClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	prefix     string
	logger     *slog.Logger
}

// NewWebhookClient creates a webhook client. The send timeout is kept in
// the order of seconds so a slow channel cannot stall callers.
func NewWebhookClient(logger *slog.Logger) *WebhookClient {
	return &WebhookClient{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 5),
		prefix:     allowedWebhookPrefix,
		logger:     logger,
	}
}

// Send validates the URL against the provider allow-list and posts the
// payload. An off-list URL is silently skipped.
func (c *WebhookClient) Send(ctx context.Context, url string, payload WebhookPayload) error {
	if !strings.HasPrefix(url, c.prefix) {
		c.logger.Warn("webhook skipped: URL not on provider allow-list")
		return nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("webhook rate gate: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
