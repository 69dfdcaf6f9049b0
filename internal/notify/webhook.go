package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const defaultTimeout = 5 * time.Second

// WebhookOptions tunes a WebhookNotifier. Zero values select defaults.
type WebhookOptions struct {
	Timeout       time.Duration
	RatePerMinute int // 0 disables rate limiting
	Burst         int
	Username      string
	Client        *http.Client
}

// WebhookNotifier posts messages as {"content": ...} to the URL stored under WebhookKey.
// The URL is read on every send, so admin changes apply immediately.
type WebhookNotifier struct {
	config   ConfigReader
	client   *http.Client
	timeout  time.Duration
	username string
	limiter  *rate.Limiter
}

// NewWebhookNotifier creates a WebhookNotifier reading its endpoint from cfg.
func NewWebhookNotifier(cfg ConfigReader, opts WebhookOptions) *WebhookNotifier {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	n := &WebhookNotifier{
		config:   cfg,
		client:   client,
		timeout:  timeout,
		username: opts.Username,
	}
	if opts.RatePerMinute > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		n.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), burst)
	}
	return n
}

// Notify sends message and logs the outcome. It never blocks longer than the
// configured timeout and never reports failure to the caller.
func (n *WebhookNotifier) Notify(ctx context.Context, message string) {
	err := n.Send(ctx, message)
	switch {
	case err == nil:
		slog.Info("webhook notification sent")
	case errors.Is(err, ErrNotConfigured):
		slog.Debug("webhook not configured, skipping notification")
	default:
		slog.Warn("webhook notification failed", "error", err)
	}
}

// Send performs a single delivery attempt and reports why it failed.
func (n *WebhookNotifier) Send(ctx context.Context, message string) error {
	url, err := n.config.GetConfig(ctx, WebhookKey)
	if err != nil {
		return fmt.Errorf("webhook: read config: %w", err)
	}
	if url == "" {
		return ErrNotConfigured
	}

	if n.limiter != nil && !n.limiter.Allow() {
		return ErrRateLimited
	}

	payload := map[string]string{"content": message}
	if n.username != "" {
		payload["username"] = n.username
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}
