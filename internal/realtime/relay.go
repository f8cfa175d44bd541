package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/btouchard/taskpulse/internal/task"
)

// Relay fans task events out across server instances. Events are published
// to a Redis channel; every instance, the publisher included, runs the
// subscription loop and delivers to its own connections through its Hub.
type Relay struct {
	rc      *redis.Client
	channel string
	hub     *Hub
	now     func() time.Time
	timeout time.Duration
}

// defaultPublishTimeout caps how long a mutation waits on Redis before the
// broadcast is abandoned. It only bounds socket reads and writes when the
// client has ContextTimeoutEnabled set.
const defaultPublishTimeout = 500 * time.Millisecond

var _ task.Broadcaster = (*Relay)(nil)

type envelope struct {
	Event string    `json:"event"`
	Task  task.Task `json:"task"`
	At    time.Time `json:"at"`
}

func NewRelay(rc *redis.Client, channel string, hub *Hub) *Relay {
	return &Relay{rc: rc, channel: channel, hub: hub, now: time.Now, timeout: defaultPublishTimeout}
}

func (r *Relay) TaskCreated(ctx context.Context, t task.Task) error {
	return r.publish(ctx, EventTaskCreated, t)
}

func (r *Relay) TaskUpdated(ctx context.Context, t task.Task) error {
	return r.publish(ctx, EventTaskUpdated, t)
}

func (r *Relay) TaskCompleted(ctx context.Context, t task.Task) error {
	return r.publish(ctx, EventTaskCompleted, t)
}

func (r *Relay) publish(ctx context.Context, event string, t task.Task) error {
	data, err := json.Marshal(envelope{Event: event, Task: t, At: r.now()})
	if err != nil {
		return fmt.Errorf("encoding %s: %w", event, err)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.rc.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("publishing %s: %w", event, err)
	}
	return nil
}

// Run consumes the channel until ctx is done, resubscribing if Redis drops
// the subscription.
func (r *Relay) Run(ctx context.Context) {
	for {
		sub := r.rc.Subscribe(ctx, r.channel)
		r.consume(ctx, sub.Channel())
		_ = sub.Close()

		if ctx.Err() != nil {
			return
		}
		slog.Error("relay subscription closed, reconnecting", "channel", r.channel)

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (r *Relay) consume(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.dispatch(ctx, msg.Payload)
		}
	}
}

func (r *Relay) dispatch(ctx context.Context, payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		slog.Warn("relay message dropped", "error", err)
		return
	}

	var err error
	switch env.Event {
	case EventTaskCreated:
		err = r.hub.TaskCreated(ctx, env.Task)
	case EventTaskUpdated:
		err = r.hub.TaskUpdated(ctx, env.Task)
	case EventTaskCompleted:
		err = r.hub.completed(env.Task, env.At)
	default:
		slog.Warn("relay message dropped", "event", env.Event)
		return
	}
	if err != nil {
		slog.Warn("relay delivery failed", "event", env.Event, "task_id", env.Task.ID, "error", err)
	}
}
