package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/btouchard/taskpulse/internal/validate"
)

// Store persists tasks. Writes return the persisted task loaded with its
// user relations, and refresh UpdatedAt. Unknown ids yield ErrNotFound.
type Store interface {
	CreateTask(ctx context.Context, t *Task) (*Task, error)
	GetTask(ctx context.Context, id int64, fetch Fetch) (*Task, error)
	ListTasks(ctx context.Context, f Filter) ([]Task, error)
	SaveTask(ctx context.Context, t *Task) (*Task, error)
	DeleteTask(ctx context.Context, id int64) error
}

// Broadcaster pushes task events to connected clients.
type Broadcaster interface {
	TaskCreated(ctx context.Context, t Task) error
	TaskUpdated(ctx context.Context, t Task) error
	TaskCompleted(ctx context.Context, t Task) error
}

// Service is the only writer of tasks. Every mutation is persisted before
// any event is broadcast, and a failed broadcast never fails the mutation.
type Service struct {
	store  Store
	events Broadcaster
	tracer trace.Tracer
}

// NewService creates a Service writing to store and announcing on events.
// A nil events disables broadcasting.
func NewService(store Store, events Broadcaster) *Service {
	if events == nil {
		events = nopBroadcaster{}
	}
	return &Service{
		store:  store,
		events: events,
		tracer: otel.Tracer("taskpulse/task"),
	}
}

// Create validates the input and persists a task owned by creatorID.
func (s *Service) Create(ctx context.Context, in CreateInput, creatorID int64) (*Task, error) {
	ctx, span := s.tracer.Start(ctx, "task.Create")
	defer span.End()

	if creatorID <= 0 {
		return nil, validate.Field("creatorId", "must identify the authenticated user")
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	saved, err := s.store.CreateTask(ctx, in.build(creatorID))
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	span.SetAttributes(attribute.Int64("task.id", saved.ID))

	slog.Info("task created", "task_id", saved.ID, "creator_id", creatorID)

	s.announce(ctx, "task:created", saved, s.events.TaskCreated)
	return saved, nil
}

// Get returns a task with its creator and assignee.
func (s *Service) Get(ctx context.Context, id int64) (*Task, error) {
	t, err := s.store.GetTask(ctx, id, FetchWithUsers)
	if err != nil {
		return nil, wrapLoad(id, err)
	}
	return t, nil
}

// List returns every task.
func (s *Service) List(ctx context.Context) ([]Task, error) {
	tasks, err := s.store.ListTasks(ctx, Filter{Fetch: FetchWithUsers})
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	return tasks, nil
}

// Update shallow-merges patch onto the stored task.
func (s *Service) Update(ctx context.Context, id int64, patch Patch) (*Task, error) {
	ctx, span := s.tracer.Start(ctx, "task.Update", trace.WithAttributes(attribute.Int64("task.id", id)))
	defer span.End()

	if err := patch.Validate(); err != nil {
		return nil, err
	}

	t, err := s.store.GetTask(ctx, id, FetchWithUsers)
	if err != nil {
		return nil, wrapLoad(id, err)
	}

	patch.Apply(t)

	saved, err := s.store.SaveTask(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("saving task %d: %w", id, err)
	}

	slog.Info("task updated", "task_id", id)

	s.announce(ctx, "task:updated", saved, s.events.TaskUpdated)
	return saved, nil
}

// UpdateStatus sets the status of a task. Moving to completed also notifies
// the task's creator, ahead of the general update event.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status Status) (*Task, error) {
	ctx, span := s.tracer.Start(ctx, "task.UpdateStatus", trace.WithAttributes(
		attribute.Int64("task.id", id),
		attribute.String("task.status", string(status)),
	))
	defer span.End()

	if !status.Valid() {
		return nil, validate.Field("status", "must be one of open, in_progress, completed")
	}

	t, err := s.store.GetTask(ctx, id, FetchWithUsers)
	if err != nil {
		return nil, wrapLoad(id, err)
	}

	previous := t.Status
	t.Status = status

	saved, err := s.store.SaveTask(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("saving task %d: %w", id, err)
	}

	slog.Info("task status changed", "task_id", id, "from", previous, "to", status)

	if status == StatusCompleted {
		s.announce(ctx, "task:completed", saved, s.events.TaskCompleted)
	}
	s.announce(ctx, "task:updated", saved, s.events.TaskUpdated)
	return saved, nil
}

// Remove deletes a task. Deletions are not broadcast.
func (s *Service) Remove(ctx context.Context, id int64) error {
	if _, err := s.store.GetTask(ctx, id, FetchTask); err != nil {
		return wrapLoad(id, err)
	}
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return fmt.Errorf("deleting task %d: %w", id, err)
	}

	slog.Info("task removed", "task_id", id)
	return nil
}

// FindByCreator returns the tasks created by userID.
func (s *Service) FindByCreator(ctx context.Context, userID int64) ([]Task, error) {
	tasks, err := s.store.ListTasks(ctx, Filter{CreatorID: userID, Fetch: FetchWithUsers})
	if err != nil {
		return nil, fmt.Errorf("listing tasks created by %d: %w", userID, err)
	}
	return tasks, nil
}

// FindByAssignee returns the tasks assigned to userID.
func (s *Service) FindByAssignee(ctx context.Context, userID int64) ([]Task, error) {
	tasks, err := s.store.ListTasks(ctx, Filter{AssigneeID: userID, Fetch: FetchWithUsers})
	if err != nil {
		return nil, fmt.Errorf("listing tasks assigned to %d: %w", userID, err)
	}
	return tasks, nil
}

func (s *Service) announce(ctx context.Context, event string, t *Task, send func(context.Context, Task) error) {
	if err := send(ctx, *t); err != nil {
		slog.Warn("broadcast failed", "event", event, "task_id", t.ID, "error", err)
	}
}

func wrapLoad(id int64, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return fmt.Errorf("loading task %d: %w", id, err)
}

type nopBroadcaster struct{}

func (nopBroadcaster) TaskCreated(context.Context, Task) error   { return nil }
func (nopBroadcaster) TaskUpdated(context.Context, Task) error   { return nil }
func (nopBroadcaster) TaskCompleted(context.Context, Task) error { return nil }
