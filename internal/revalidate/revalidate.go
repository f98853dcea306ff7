// Package revalidate notifies the frontend when cached content is stale.
package revalidate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Kalhara-JA/retail-os/internal/metrics"
)

// SecretHeader carries the shared secret on webhook calls
const SecretHeader = "X-Revalidate-Secret"

// Client posts revalidation requests to the frontend webhook.
// A Client with an empty URL does nothing.
type Client struct {
	url        string
	secret     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a revalidation client
func New(url, secret string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		url:    url,
		secret: secret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Enabled reports whether a webhook URL is configured
func (c *Client) Enabled() bool {
	return c.url != ""
}

// Revalidate asks the frontend to drop cached data for tag.
// Errors are logged and counted; content writes never fail because of them.
func (c *Client) Revalidate(ctx context.Context, tag string) {
	if !c.Enabled() {
		return
	}

	if err := c.post(ctx, tag); err != nil {
		metrics.IncRevalidations("error")
		c.logger.Warn("revalidation failed", "tag", tag, "error", err)
		return
	}

	metrics.IncRevalidations("ok")
	c.logger.Debug("revalidated", "tag", tag)
}

func (c *Client) post(ctx context.Context, tag string) error {
	data, err := json.Marshal(map[string]string{"tag": tag})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set(SecretHeader, c.secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}
