package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/btouchard/taskpulse/internal/realtime"
	"github.com/btouchard/taskpulse/internal/task"
)

const notificationMethod = "notifications/message"

// MCPSender abstracts the mcp-go server notification methods.
// Defined consumer-side per Go convention.
type MCPSender interface {
	SendNotificationToSpecificClient(sessionID string, method string, params map[string]any) error
	SendNotificationToAllClients(method string, params map[string]any)
}

// SessionDirectory resolves a user to their MCP session ids.
type SessionDirectory interface {
	ConnectionsForUser(userID int64) []string
}

// MCPNotifier pushes task events to MCP clients as log messages. Created
// and updated tasks go to every session; completions go only to the
// creator's sessions. Updates to one task are throttled: the first is sent
// at once, later ones inside the window collapse into a single trailing
// notice carrying the latest state.
type MCPNotifier struct {
	sender   MCPSender
	sessions SessionDirectory
	debounce time.Duration
	now      func() time.Time
	after    func(d time.Duration, f func()) (stop func() bool)

	mu      sync.Mutex
	windows map[int64]*updateWindow
}

// updateWindow is open for debounce after each update sent for a task.
type updateWindow struct {
	pending *task.Task
	stop    func() bool
}

var _ task.Broadcaster = (*MCPNotifier)(nil)

// NewMCPNotifier creates an MCPNotifier. A non-positive debounce defaults
// to three seconds.
func NewMCPNotifier(sender MCPSender, sessions SessionDirectory, debounce time.Duration) *MCPNotifier {
	if debounce <= 0 {
		debounce = 3 * time.Second
	}
	return &MCPNotifier{
		sender:   sender,
		sessions: sessions,
		debounce: debounce,
		now:      time.Now,
		after: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
		windows: make(map[int64]*updateWindow),
	}
}

func (n *MCPNotifier) TaskCreated(_ context.Context, t task.Task) error {
	n.sender.SendNotificationToAllClients(notificationMethod, params("info", realtime.EventTaskCreated, summary(t)))
	return nil
}

func (n *MCPNotifier) TaskUpdated(_ context.Context, t task.Task) error {
	n.mu.Lock()
	if w, ok := n.windows[t.ID]; ok {
		w.pending = &t
		n.mu.Unlock()
		return nil
	}
	n.openWindow(t.ID)
	n.mu.Unlock()

	n.sendUpdate(t)
	return nil
}

func (n *MCPNotifier) TaskCompleted(_ context.Context, t task.Task) error {
	n.closeWindow(t.ID)

	sessions := n.sessions.ConnectionsForUser(t.CreatorID)
	if len(sessions) == 0 {
		return nil
	}

	c := realtime.NewCompletion(t, n.now())
	p := params("notice", realtime.EventTaskCompleted, map[string]any{
		"taskId":      c.TaskID,
		"title":       c.Title,
		"completedBy": c.CompletedBy,
		"completedAt": c.CompletedAt,
	})

	var errs []error
	for _, sid := range sessions {
		if err := n.sender.SendNotificationToSpecificClient(sid, notificationMethod, p); err != nil {
			slog.Debug("mcp notification failed", "session_id", sid, "error", err)
			errs = append(errs, fmt.Errorf("session %s: %w", sid, err))
		}
	}
	return errors.Join(errs...)
}

func (n *MCPNotifier) sendUpdate(t task.Task) {
	n.sender.SendNotificationToAllClients(notificationMethod, params("info", realtime.EventTaskUpdated, summary(t)))
}

// openWindow starts the debounce window for taskID. Callers hold mu.
func (n *MCPNotifier) openWindow(taskID int64) {
	w := &updateWindow{}
	n.windows[taskID] = w
	w.stop = n.after(n.debounce, func() { n.flush(taskID, w) })
}

// flush ends w. A pending update is sent and starts a new window; without
// one the task's entry is dropped.
func (n *MCPNotifier) flush(taskID int64, w *updateWindow) {
	n.mu.Lock()
	if n.windows[taskID] != w {
		n.mu.Unlock()
		return
	}
	delete(n.windows, taskID)
	pending := w.pending
	if pending != nil {
		n.openWindow(taskID)
	}
	n.mu.Unlock()

	if pending != nil {
		n.sendUpdate(*pending)
	}
}

// closeWindow discards any window for a finished task. The update that
// follows a completion is then sent straight away.
func (n *MCPNotifier) closeWindow(taskID int64) {
	n.mu.Lock()
	if w, ok := n.windows[taskID]; ok {
		w.stop()
		delete(n.windows, taskID)
	}
	n.mu.Unlock()
}

func params(level, event string, data any) map[string]any {
	return map[string]any{
		"level":  level,
		"logger": "taskpulse",
		"data": map[string]any{
			"event":   event,
			"payload": data,
		},
	}
}

func summary(t task.Task) map[string]any {
	return map[string]any{
		"taskId":    t.ID,
		"title":     t.Title,
		"status":    t.Status,
		"priority":  t.Priority,
		"creatorId": t.CreatorID,
	}
}
