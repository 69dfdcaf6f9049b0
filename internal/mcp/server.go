package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/firstblood/internal/mcp/handlers"
	"github.com/btouchard/firstblood/internal/notify"
)

// Deps holds shared dependencies injected into MCP handlers.
type Deps struct {
	Config   handlers.ConfigStore
	Bloods   handlers.FirstBloodLister
	Notifier notify.Notifier
	Version  string
}

// NewServer creates and configures the MCP server with all tools registered.
func NewServer(deps *Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"firstblood",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)

	registerTools(s, deps)

	return s
}
