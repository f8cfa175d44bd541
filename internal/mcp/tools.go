package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/taskpulse/internal/mcp/handlers"
)

func registerTools(s *server.MCPServer, deps *Deps) {
	// list_tasks: List tasks visible to the caller
	s.AddTool(
		mcp.NewTool("list_tasks",
			mcp.WithDescription("List tasks. Use scope to restrict to tasks you created or tasks assigned to you."),
			mcp.WithString("scope",
				mcp.Description("Which tasks to list (default: all)"),
				mcp.Enum("all", "created", "assigned"),
			),
			mcp.WithString("status",
				mcp.Description("Only list tasks in this status"),
				mcp.Enum("open", "in_progress", "completed"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of tasks to return"),
			),
		),
		handlers.ListTasks(deps.Tasks),
	)

	// get_task: Show one task
	s.AddTool(
		mcp.NewTool("get_task",
			mcp.WithDescription("Show a task with its description, creator, assignee and timestamps."),
			mcp.WithNumber("task_id",
				mcp.Required(),
				mcp.Description("The numeric task ID"),
			),
		),
		handlers.GetTask(deps.Tasks),
	)

	// create_task: Create a task owned by the caller
	s.AddTool(
		mcp.NewTool("create_task",
			mcp.WithDescription("Create a task. You become its creator; subscribers of the tasks room are notified."),
			mcp.WithString("title",
				mcp.Required(),
				mcp.Description("Short title, at most 255 characters"),
			),
			mcp.WithString("description",
				mcp.Description("Longer free-form description"),
			),
			mcp.WithString("priority",
				mcp.Description("Task priority (default: medium)"),
				mcp.Enum("low", "medium", "high"),
			),
			mcp.WithNumber("assignee_id",
				mcp.Description("User ID of the assignee"),
			),
			mcp.WithString("due_date",
				mcp.Description("Due date as an RFC 3339 timestamp"),
			),
		),
		handlers.CreateTask(deps.Tasks),
	)

	// update_task_status: Move a task through its lifecycle
	s.AddTool(
		mcp.NewTool("update_task_status",
			mcp.WithDescription("Set a task's status. Completing a task notifies its creator."),
			mcp.WithNumber("task_id",
				mcp.Required(),
				mcp.Description("The numeric task ID"),
			),
			mcp.WithString("status",
				mcp.Required(),
				mcp.Description("The new status"),
				mcp.Enum("open", "in_progress", "completed"),
			),
		),
		handlers.UpdateTaskStatus(deps.Tasks),
	)
}
