package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// GetTask returns a handler that shows one task in full.
func GetTask(svc TaskService) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if _, ok := callerID(ctx); !ok {
			return unauthenticated(), nil
		}

		id, err := taskIDArg(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		t, err := svc.Get(ctx, id)
		if err != nil {
			return toolError(err), nil
		}

		var b strings.Builder
		formatTask(&b, *t)
		if t.Description != "" {
			fmt.Fprintf(&b, "\n%s\n", t.Description)
		}
		fmt.Fprintf(&b, "\n- Created: %s\n- Updated: %s\n",
			t.CreatedAt.Format("2006-01-02 15:04:05"),
			t.UpdatedAt.Format("2006-01-02 15:04:05"))

		return mcp.NewToolResultText(b.String()), nil
	}
}
