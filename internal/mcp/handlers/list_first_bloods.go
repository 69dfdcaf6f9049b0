package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/firstblood/internal/store"
)

// FirstBloodLister lists the first solve of every solved challenge, newest first.
type FirstBloodLister interface {
	ListFirstBloods(ctx context.Context) ([]store.FirstBloodRecord, error)
}

// ListFirstBloods returns a handler that lists first bloods.
func ListFirstBloods(l FirstBloodLister) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		limit := 20
		if v, ok := args["limit"].(float64); ok && v > 0 {
			limit = int(v)
		}

		bloods, err := l.ListFirstBloods(ctx)
		if err != nil {
			slog.Error("mcp: list first bloods", "error", err)
			return mcp.NewToolResultError("Failed to list first bloods"), nil
		}
		if len(bloods) == 0 {
			return mcp.NewToolResultText("No first bloods yet."), nil
		}

		total := len(bloods)
		if len(bloods) > limit {
			bloods = bloods[:limit]
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "🩸 First bloods (%d of %d)\n\n", len(bloods), total)
		for _, fb := range bloods {
			kind := "user"
			if fb.TeamID != 0 {
				kind = "team"
			}
			fmt.Fprintf(&sb, "**%s** — %s (%s)\n", fb.ChallengeName, fb.SolverName, kind)
			fmt.Fprintf(&sb, "  Solve #%d at %s\n", fb.SolveID, fb.SolvedAt.UTC().Format("2006-01-02 15:04:05Z"))
		}

		return mcp.NewToolResultText(sb.String()), nil
	}
}
