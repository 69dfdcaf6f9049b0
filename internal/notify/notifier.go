package notify

import (
	"context"
	"errors"
)

// WebhookKey is the configuration entry holding the sink URL.
const WebhookKey = "FIRST_BLOOD_WEBHOOK"

var (
	// ErrNotConfigured means no sink URL is set. It disables delivery; it is not a failure.
	ErrNotConfigured = errors.New("webhook not configured")

	// ErrRateLimited means the outbound budget is spent and the message was dropped.
	ErrRateLimited = errors.New("webhook rate limit exceeded")
)

// ConfigReader reads one configuration value. An unset key yields "".
// Defined consumer-side per Go convention.
type ConfigReader interface {
	GetConfig(ctx context.Context, key string) (string, error)
}

// Notifier delivers a pre-rendered message. Delivery is best effort:
// failures are logged, never returned.
type Notifier interface {
	Notify(ctx context.Context, message string)
}
