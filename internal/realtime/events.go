package realtime

import (
	"encoding/json"
	"time"

	"github.com/btouchard/taskpulse/internal/task"
)

// Event names on the wire.
const (
	EventTaskCreated   = "task:created"
	EventTaskUpdated   = "task:updated"
	EventTaskCompleted = "task:completed"
	EventJoined        = "joined"
	EventError         = "error"

	// EventJoinTasks is sent by clients to subscribe to the tasks group.
	EventJoinTasks = "join:tasks"
)

// GroupTasks receives every created and updated task.
const GroupTasks = "tasks"

const (
	joinedMessage     = "Successfully joined tasks room"
	authFailedMessage = "Authentication failed"
	anonymousAssignee = "Someone"
)

// Frame is the envelope of every message, in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Message string `json:"message"`
}

// Completion is the payload of task:completed, delivered only to the
// connections of the task's creator.
type Completion struct {
	TaskID      int64     `json:"taskId"`
	Title       string    `json:"title"`
	CompletedBy string    `json:"completedBy"`
	CompletedAt time.Time `json:"completedAt"`
}

// NewCompletion builds the completion payload. The completer is reported as
// the assignee's username, or "Someone" for unassigned tasks.
func NewCompletion(t task.Task, at time.Time) Completion {
	by := anonymousAssignee
	if t.Assignee != nil && t.Assignee.Username != "" {
		by = t.Assignee.Username
	}
	return Completion{
		TaskID:      t.ID,
		Title:       t.Title,
		CompletedBy: by,
		CompletedAt: at,
	}
}

func encode(event string, data any) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Data: data})
}
