package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/taskpulse/internal/task"
)

// ListTasks returns a handler that lists tasks, optionally scoped to the
// ones the caller created or is assigned to.
func ListTasks(svc TaskService) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		userID, ok := callerID(ctx)
		if !ok {
			return unauthenticated(), nil
		}

		scope := "all"
		if s, ok := args["scope"].(string); ok && s != "" {
			scope = s
		}

		var (
			tasks []task.Task
			err   error
		)
		switch scope {
		case "all":
			tasks, err = svc.List(ctx)
		case "created":
			tasks, err = svc.FindByCreator(ctx, userID)
		case "assigned":
			tasks, err = svc.FindByAssignee(ctx, userID)
		default:
			return mcp.NewToolResultError("scope must be one of all, created, assigned"), nil
		}
		if err != nil {
			return toolError(err), nil
		}

		if status, ok := args["status"].(string); ok && status != "" {
			tasks = filterStatus(tasks, task.Status(status))
		}
		if limit, ok := args["limit"].(float64); ok && limit > 0 && int(limit) < len(tasks) {
			tasks = tasks[:int(limit)]
		}

		if len(tasks) == 0 {
			return mcp.NewToolResultText("No tasks found matching the given filters."), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "📋 Tasks (%d found)\n\n", len(tasks))
		for _, t := range tasks {
			formatTask(&sb, t)
			sb.WriteString("\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func filterStatus(tasks []task.Task, status task.Status) []task.Task {
	out := tasks[:0:0]
	for _, t := range tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}
