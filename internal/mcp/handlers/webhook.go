package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/firstblood/internal/firstblood"
	"github.com/btouchard/firstblood/internal/notify"
)

// ConfigStore reads and writes key-value configuration entries.
type ConfigStore interface {
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

// GetWebhook returns a handler that shows the configured webhook URL.
func GetWebhook(cfg ConfigStore) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := cfg.GetConfig(ctx, notify.WebhookKey)
		if err != nil {
			slog.Error("mcp: read webhook config", "error", err)
			return mcp.NewToolResultError("Failed to read webhook configuration"), nil
		}
		if url == "" {
			return mcp.NewToolResultText("No First Blood webhook configured. Notifications are disabled."), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("First Blood webhook: %s", url)), nil
	}
}

// SetWebhook returns a handler that stores the trimmed webhook URL.
// An empty url disables notifications.
func SetWebhook(cfg ConfigStore) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		raw, ok := args["url"].(string)
		if !ok {
			return mcp.NewToolResultError("url is required (use an empty string to disable)"), nil
		}
		url := strings.TrimSpace(raw)

		if err := cfg.SetConfig(ctx, notify.WebhookKey, url); err != nil {
			slog.Error("mcp: save webhook config", "error", err)
			return mcp.NewToolResultError("Failed to save webhook configuration"), nil
		}

		slog.Info("first blood webhook updated via mcp", "enabled", url != "")
		if url == "" {
			return mcp.NewToolResultText("First Blood webhook cleared. Notifications are disabled."), nil
		}
		return mcp.NewToolResultText("First Blood webhook saved"), nil
	}
}

// SendTest returns a handler that fires the test message. Delivery failures
// are never reported, the acknowledgement is the same either way.
func SendTest(n notify.Notifier) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		n.Notify(ctx, firstblood.TestMessage)
		return mcp.NewToolResultText("Test message sent (if webhook is valid)"), nil
	}
}
