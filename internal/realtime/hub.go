// Package realtime pushes task events to WebSocket clients.
//
// Every authenticated connection is recorded in a Registry. Created and
// updated tasks go to the connections that joined the "tasks" group;
// completions go only to the connections owned by the task's creator.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/btouchard/taskpulse/internal/task"
)

// Hub tracks live connections and fans events out to them. It implements
// task.Broadcaster for single-instance deployments.
type Hub struct {
	registry *Registry
	now      func() time.Time

	mu      sync.RWMutex
	clients map[string]*client
	groups  map[string]map[string]struct{}
}

var _ task.Broadcaster = (*Hub)(nil)

func NewHub(registry *Registry) *Hub {
	return &Hub{
		registry: registry,
		now:      time.Now,
		clients:  make(map[string]*client),
		groups:   make(map[string]map[string]struct{}),
	}
}

// Registry returns the connection registry the hub maintains.
func (h *Hub) Registry() *Registry {
	return h.registry
}

func (h *Hub) TaskCreated(_ context.Context, t task.Task) error {
	return h.toGroup(GroupTasks, EventTaskCreated, t)
}

func (h *Hub) TaskUpdated(_ context.Context, t task.Task) error {
	return h.toGroup(GroupTasks, EventTaskUpdated, t)
}

// TaskCompleted notifies every connection of the task's creator. A creator
// with no live connection is not an error; nothing is queued for later.
func (h *Hub) TaskCompleted(_ context.Context, t task.Task) error {
	return h.completed(t, h.now())
}

func (h *Hub) completed(t task.Task, at time.Time) error {
	ids := h.registry.ConnectionsForUser(t.CreatorID)
	if len(ids) == 0 {
		slog.Debug("completion not delivered, creator offline", "task_id", t.ID, "creator_id", t.CreatorID)
		return nil
	}

	msg, err := encode(EventTaskCompleted, NewCompletion(t, at))
	if err != nil {
		return fmt.Errorf("encoding %s: %w", EventTaskCompleted, err)
	}

	h.deliver(EventTaskCompleted, h.lookup(ids), msg)
	return nil
}

func (h *Hub) toGroup(group, event string, payload any) error {
	msg, err := encode(event, payload)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", event, err)
	}

	h.mu.RLock()
	recipients := make([]*client, 0, len(h.groups[group]))
	for id := range h.groups[group] {
		if c, ok := h.clients[id]; ok {
			recipients = append(recipients, c)
		}
	}
	h.mu.RUnlock()

	h.deliver(event, recipients, msg)
	return nil
}

// lookup resolves connection ids to live clients. Ids whose connection has
// already gone away are skipped.
func (h *Hub) lookup(ids []string) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*client, 0, len(ids))
	for _, id := range ids {
		if c, ok := h.clients[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) deliver(event string, recipients []*client, msg []byte) {
	for _, c := range recipients {
		err := c.enqueue(msg)
		switch {
		case err == nil:
			eventsSent.WithLabelValues(event).Inc()
		case errors.Is(err, errQueueFull):
			deliveriesDropped.WithLabelValues(event).Inc()
			slog.Warn("delivery dropped", "event", event, "conn_id", c.id, "user_id", c.userID, "error", err)
		}
	}
}

func (h *Hub) attach(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.registry.Register(c.id, c.userID)
	connectionsGauge.Inc()

	slog.Info("client connected", "conn_id", c.id, "user_id", c.userID)
}

func (h *Hub) detach(c *client) {
	h.registry.Unregister(c.id)

	h.mu.Lock()
	_, known := h.clients[c.id]
	delete(h.clients, c.id)
	for _, members := range h.groups {
		delete(members, c.id)
	}
	h.mu.Unlock()

	c.close()
	if known {
		connectionsGauge.Dec()
		slog.Info("client disconnected", "conn_id", c.id, "user_id", c.userID)
	}
}

func (h *Hub) join(connID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[connID]; !ok {
		return
	}
	members, ok := h.groups[group]
	if !ok {
		members = make(map[string]struct{})
		h.groups[group] = members
	}
	members[connID] = struct{}{}
}

func (h *Hub) handleMessage(c *client, data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
		h.reply(c, EventError, ErrorData{Message: "malformed message"})
		return
	}

	switch f.Event {
	case EventJoinTasks:
		h.join(c.id, GroupTasks)
		slog.Info("client joined group", "conn_id", c.id, "group", GroupTasks)
		h.reply(c, EventJoined, joinedMessage)
	default:
		h.reply(c, EventError, ErrorData{Message: "unknown event " + f.Event})
	}
}

func (h *Hub) reply(c *client, event string, data any) {
	msg, err := encode(event, data)
	if err != nil {
		return
	}
	h.deliver(event, []*client{c}, msg)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}
