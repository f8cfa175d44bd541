package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/taskpulse/internal/task"
)

// CreateTask returns a handler that creates a task owned by the caller.
func CreateTask(svc TaskService) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		userID, ok := callerID(ctx)
		if !ok {
			return unauthenticated(), nil
		}

		in := task.CreateInput{}
		in.Title, _ = args["title"].(string)
		in.Description, _ = args["description"].(string)
		if p, ok := args["priority"].(string); ok {
			in.Priority = task.Priority(p)
		}
		if a, ok := args["assignee_id"].(float64); ok {
			id := int64(a)
			in.AssigneeID = &id
		}
		if raw, ok := args["due_date"].(string); ok && raw != "" {
			due, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return mcp.NewToolResultError("due_date must be an RFC 3339 timestamp"), nil
			}
			in.DueDate = &due
		}

		t, err := svc.Create(ctx, in, userID)
		if err != nil {
			return toolError(err), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Task #%d created: %s (%s, %s priority)",
			t.ID, t.Title, t.Status, t.Priority)), nil
	}
}
