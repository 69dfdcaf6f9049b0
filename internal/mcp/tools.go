package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/firstblood/internal/mcp/handlers"
)

func registerTools(s *server.MCPServer, deps *Deps) {
	// get_webhook — Show the configured endpoint
	s.AddTool(
		mcp.NewTool("get_webhook",
			mcp.WithDescription("Show the webhook URL that receives First Blood announcements. Empty means notifications are disabled."),
		),
		handlers.GetWebhook(deps.Config),
	)

	// set_webhook — Update the endpoint
	s.AddTool(
		mcp.NewTool("set_webhook",
			mcp.WithDescription("Set the webhook URL for First Blood announcements. Surrounding whitespace is trimmed; an empty string disables notifications."),
			mcp.WithString("url",
				mcp.Required(),
				mcp.Description("Chat webhook URL accepting a JSON {\"content\": ...} POST"),
			),
		),
		handlers.SetWebhook(deps.Config),
	)

	// send_test — Fire the test message
	s.AddTool(
		mcp.NewTool("send_test",
			mcp.WithDescription("Send a test message to the configured webhook. The result does not report delivery success."),
		),
		handlers.SendTest(deps.Notifier),
	)

	// list_first_bloods — Recent first bloods
	s.AddTool(
		mcp.NewTool("list_first_bloods",
			mcp.WithDescription("List the first solve of every solved challenge, newest first."),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of entries to return (default: 20)"),
			),
		),
		handlers.ListFirstBloods(deps.Bloods),
	)
}
