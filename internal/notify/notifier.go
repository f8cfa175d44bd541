// Package notify fans task events out to every configured sink: the
// WebSocket hub (or the Redis relay in front of it) and MCP sessions.
package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/btouchard/taskpulse/internal/task"
)

// Fanout dispatches each event to several broadcasters in order. Sinks run
// sequentially so that per-task event order holds for every sink.
type Fanout struct {
	mu    sync.RWMutex
	sinks []task.Broadcaster
}

var _ task.Broadcaster = (*Fanout)(nil)

// NewFanout creates a Fanout over the non-nil sinks.
func NewFanout(sinks ...task.Broadcaster) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Add appends a sink. Sinks that depend on the task service, such as the
// MCP notifier, are added once the service exists.
func (f *Fanout) Add(sink task.Broadcaster) {
	if sink == nil {
		return
	}
	f.mu.Lock()
	f.sinks = append(f.sinks, sink)
	f.mu.Unlock()
}

func (f *Fanout) TaskCreated(ctx context.Context, t task.Task) error {
	return f.each(func(b task.Broadcaster) error { return b.TaskCreated(ctx, t) })
}

func (f *Fanout) TaskUpdated(ctx context.Context, t task.Task) error {
	return f.each(func(b task.Broadcaster) error { return b.TaskUpdated(ctx, t) })
}

func (f *Fanout) TaskCompleted(ctx context.Context, t task.Task) error {
	return f.each(func(b task.Broadcaster) error { return b.TaskCompleted(ctx, t) })
}

// each keeps going past a failing sink.
func (f *Fanout) each(fn func(task.Broadcaster) error) error {
	f.mu.RLock()
	sinks := f.sinks
	f.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
