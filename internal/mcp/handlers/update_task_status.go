package handlers

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/taskpulse/internal/task"
)

// UpdateTaskStatus returns a handler that moves a task to a new status.
// Completing a task notifies its creator.
func UpdateTaskStatus(svc TaskService) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		if _, ok := callerID(ctx); !ok {
			return unauthenticated(), nil
		}

		id, err := taskIDArg(args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		raw, _ := args["status"].(string)
		status, err := task.ParseStatus(raw)
		if err != nil {
			return toolError(err), nil
		}

		t, err := svc.UpdateStatus(ctx, id, status)
		if err != nil {
			return toolError(err), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("%s Task #%d is now %s", statusIcon(t.Status), t.ID, t.Status)), nil
	}
}
