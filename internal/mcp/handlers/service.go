// Package handlers implements the MCP tool handlers over the task service.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/btouchard/taskpulse/internal/auth"
	"github.com/btouchard/taskpulse/internal/task"
	"github.com/btouchard/taskpulse/internal/validate"
)

// TaskService is the part of task.Service the tools call. Mutations go
// through it so MCP writes are broadcast exactly like REST writes.
type TaskService interface {
	Create(ctx context.Context, in task.CreateInput, creatorID int64) (*task.Task, error)
	Get(ctx context.Context, id int64) (*task.Task, error)
	List(ctx context.Context) ([]task.Task, error)
	UpdateStatus(ctx context.Context, id int64, status task.Status) (*task.Task, error)
	FindByCreator(ctx context.Context, userID int64) ([]task.Task, error)
	FindByAssignee(ctx context.Context, userID int64) ([]task.Task, error)
}

func unauthenticated() *mcp.CallToolResult {
	return mcp.NewToolResultError("authentication required")
}

func callerID(ctx context.Context) (int64, bool) {
	return auth.UserIDFromContext(ctx)
}

// taskIDArg reads a positive integer task_id. JSON numbers arrive as
// float64; numeric strings are accepted too.
func taskIDArg(args map[string]any) (int64, error) {
	switch v := args["task_id"].(type) {
	case float64:
		if v > 0 && v == float64(int64(v)) {
			return int64(v), nil
		}
	case string:
		var id int64
		if _, err := fmt.Sscan(v, &id); err == nil && id > 0 {
			return id, nil
		}
	case nil:
		return 0, errors.New("task_id is required")
	}
	return 0, errors.New("task_id must be a positive integer")
}

// toolError renders a service error as a tool-level error result.
func toolError(err error) *mcp.CallToolResult {
	var verrs validate.Errors
	switch {
	case errors.As(err, &verrs):
		parts := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			parts = append(parts, fe.Field+" "+fe.Message)
		}
		return mcp.NewToolResultError("Invalid input: " + strings.Join(parts, "; "))
	case errors.Is(err, task.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("Task not found: %s", err))
	case errors.Is(err, task.ErrUnknownAssignee):
		return mcp.NewToolResultError("Invalid input: assignee_id must reference an existing user")
	case errors.Is(err, task.ErrUnknownCreator):
		return mcp.NewToolResultError("Your account is not registered; create a user before creating tasks")
	default:
		return mcp.NewToolResultError("Request failed: " + err.Error())
	}
}

func statusIcon(s task.Status) string {
	switch s {
	case task.StatusOpen:
		return "⏳"
	case task.StatusInProgress:
		return "🔄"
	case task.StatusCompleted:
		return "✅"
	default:
		return "❓"
	}
}

func formatTask(b *strings.Builder, t task.Task) {
	fmt.Fprintf(b, "%s **#%d %s** | %s\n", statusIcon(t.Status), t.ID, t.Title, t.Status)
	fmt.Fprintf(b, "  Priority: %s | Creator: %s", t.Priority, username(t.Creator, t.CreatorID))
	if t.AssigneeID != nil {
		fmt.Fprintf(b, " | Assignee: %s", username(t.Assignee, *t.AssigneeID))
	}
	b.WriteString("\n")
	if t.DueDate != nil {
		fmt.Fprintf(b, "  Due: %s\n", t.DueDate.Format("2006-01-02"))
	}
}

func username(ref *task.UserRef, id int64) string {
	if ref != nil && ref.Username != "" {
		return ref.Username
	}
	return fmt.Sprintf("user %d", id)
}
