package task

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/taskpulse/internal/validate"
)

// journal records store writes and broadcasts in the order they happen.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type memStore struct {
	log     *journal
	mu      sync.Mutex
	seq     int64
	tasks   map[int64]Task
	users   map[int64]UserRef
	failErr error
	clock   time.Time
}

func newMemStore(log *journal) *memStore {
	return &memStore{
		log:   log,
		tasks: make(map[int64]Task),
		users: map[int64]UserRef{
			7: {ID: 7, Username: "ada"},
			8: {ID: 8, Username: "bob"},
		},
		clock: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memStore) withUsers(t Task) *Task {
	if u, ok := m.users[t.CreatorID]; ok {
		t.Creator = &u
	}
	t.Assignee = nil
	if t.AssigneeID != nil {
		if u, ok := m.users[*t.AssigneeID]; ok {
			t.Assignee = &u
		}
	}
	return &t
}

func (m *memStore) CreateTask(_ context.Context, t *Task) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	m.seq++
	stored := *t
	stored.ID = m.seq
	stored.CreatedAt = m.tick()
	stored.UpdatedAt = stored.CreatedAt
	m.tasks[stored.ID] = stored
	m.log.add("store:create")
	return m.withUsers(stored), nil
}

func (m *memStore) GetTask(_ context.Context, id int64, fetch Fetch) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	if fetch == FetchWithUsers {
		return m.withUsers(t), nil
	}
	return &t, nil
}

func (m *memStore) ListTasks(_ context.Context, f Filter) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Task
	for _, t := range m.tasks {
		if f.CreatorID != 0 && t.CreatorID != f.CreatorID {
			continue
		}
		if f.AssigneeID != 0 && (t.AssigneeID == nil || *t.AssigneeID != f.AssigneeID) {
			continue
		}
		out = append(out, *m.withUsers(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) SaveTask(_ context.Context, t *Task) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	prev, ok := m.tasks[t.ID]
	if !ok {
		return nil, ErrNotFound
	}
	stored := *t
	stored.CreatorID = prev.CreatorID
	stored.CreatedAt = prev.CreatedAt
	stored.UpdatedAt = m.tick()
	m.tasks[t.ID] = stored
	m.log.add("store:save")
	return m.withUsers(stored), nil
}

func (m *memStore) DeleteTask(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(m.tasks, id)
	m.log.add("store:delete")
	return nil
}

type sentEvent struct {
	name string
	task Task
}

type recordingBroadcaster struct {
	log  *journal
	mu   sync.Mutex
	sent []sentEvent
	err  error
}

func (r *recordingBroadcaster) record(name string, t Task) error {
	r.mu.Lock()
	r.sent = append(r.sent, sentEvent{name: name, task: t})
	r.mu.Unlock()
	r.log.add("broadcast:" + name)
	return r.err
}

func (r *recordingBroadcaster) TaskCreated(_ context.Context, t Task) error {
	return r.record("task:created", t)
}

func (r *recordingBroadcaster) TaskUpdated(_ context.Context, t Task) error {
	return r.record("task:updated", t)
}

func (r *recordingBroadcaster) TaskCompleted(_ context.Context, t Task) error {
	return r.record("task:completed", t)
}

func (r *recordingBroadcaster) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, e := range r.sent {
		out = append(out, e.name)
	}
	return out
}

func newTestService() (*Service, *memStore, *recordingBroadcaster, *journal) {
	log := &journal{}
	store := newMemStore(log)
	events := &recordingBroadcaster{log: log}
	return NewService(store, events), store, events, log
}

func int64Ptr(v int64) *int64 { return &v }

func TestService_Create_PersistsThenBroadcasts(t *testing.T) {
	t.Parallel()
	svc, _, events, log := newTestService()

	created, err := svc.Create(context.Background(), CreateInput{Title: "Write report"}, 7)
	require.NoError(t, err)

	assert.NotZero(t, created.ID)
	assert.Equal(t, "Write report", created.Title)
	assert.Equal(t, StatusOpen, created.Status)
	assert.Equal(t, PriorityMedium, created.Priority)
	assert.Equal(t, int64(7), created.CreatorID)
	require.NotNil(t, created.Creator)
	assert.Equal(t, "ada", created.Creator.Username)

	assert.Equal(t, []string{"store:create", "broadcast:task:created"}, log.all())
	require.Len(t, events.sent, 1)
	assert.Equal(t, created.ID, events.sent[0].task.ID)
}

func TestService_Create_KeepsExplicitStatusAndPriority(t *testing.T) {
	t.Parallel()
	svc, _, _, _ := newTestService()

	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	created, err := svc.Create(context.Background(), CreateInput{
		Title:      "  Ship it  ",
		Status:     StatusInProgress,
		Priority:   PriorityHigh,
		DueDate:    &due,
		AssigneeID: int64Ptr(8),
	}, 7)
	require.NoError(t, err)

	assert.Equal(t, "Ship it", created.Title)
	assert.Equal(t, StatusInProgress, created.Status)
	assert.Equal(t, PriorityHigh, created.Priority)
	assert.Equal(t, due, *created.DueDate)
	require.NotNil(t, created.Assignee)
	assert.Equal(t, "bob", created.Assignee.Username)
}

func TestService_Create_RejectsInvalidInputWithoutSideEffects(t *testing.T) {
	t.Parallel()
	svc, _, _, log := newTestService()

	_, err := svc.Create(context.Background(), CreateInput{Title: " ", Priority: "urgent"}, 7)
	require.Error(t, err)

	var verrs validate.Errors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 2)
	assert.Empty(t, log.all())
}

func TestService_Create_RequiresAuthenticatedCreator(t *testing.T) {
	t.Parallel()
	svc, _, _, log := newTestService()

	_, err := svc.Create(context.Background(), CreateInput{Title: "x"}, 0)
	require.Error(t, err)
	assert.Empty(t, log.all())
}

func TestService_Create_StoreFailureSkipsBroadcast(t *testing.T) {
	t.Parallel()
	svc, store, events, _ := newTestService()
	store.failErr = errors.New("disk full")

	_, err := svc.Create(context.Background(), CreateInput{Title: "x"}, 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.failErr)
	assert.Empty(t, events.sent)
}

func TestService_Create_BroadcastFailureIsSwallowed(t *testing.T) {
	t.Parallel()
	svc, store, events, _ := newTestService()
	events.err = errors.New("transport down")

	created, err := svc.Create(context.Background(), CreateInput{Title: "x"}, 7)
	require.NoError(t, err)

	stored, err := store.GetTask(context.Background(), created.ID, FetchTask)
	require.NoError(t, err)
	assert.Equal(t, "x", stored.Title)
}

func TestService_Update_MergesPatch(t *testing.T) {
	t.Parallel()
	svc, _, events, log := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Title: "Draft", Description: "first"}, 7)
	require.NoError(t, err)

	title := "Final"
	updated, err := svc.Update(ctx, created.ID, Patch{Title: &title, AssigneeID: int64Ptr(8)})
	require.NoError(t, err)

	assert.Equal(t, "Final", updated.Title)
	assert.Equal(t, "first", updated.Description)
	assert.Equal(t, int64(7), updated.CreatorID)
	require.NotNil(t, updated.Assignee)
	assert.Equal(t, "bob", updated.Assignee.Username)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	assert.Equal(t, []string{"task:created", "task:updated"}, events.names())
	assert.Equal(t, []string{"store:create", "broadcast:task:created", "store:save", "broadcast:task:updated"}, log.all())
}

func TestService_Update_CompletedViaPatchOnlyBroadcastsUpdate(t *testing.T) {
	t.Parallel()
	svc, _, events, _ := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Title: "x"}, 7)
	require.NoError(t, err)

	done := StatusCompleted
	_, err = svc.Update(ctx, created.ID, Patch{Status: &done})
	require.NoError(t, err)

	assert.Equal(t, []string{"task:created", "task:updated"}, events.names())
}

func TestService_Update_UnknownIDReturnsNotFound(t *testing.T) {
	t.Parallel()
	svc, _, events, log := newTestService()

	title := "x"
	_, err := svc.Update(context.Background(), 99, Patch{Title: &title})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, events.sent)
	assert.Empty(t, log.all())
}

func TestService_UpdateStatus_CompletedBroadcastsCompletionThenUpdate(t *testing.T) {
	t.Parallel()
	svc, _, events, log := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Title: "Write report"}, 7)
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, created.ID, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)

	assert.Equal(t, []string{"task:created", "task:completed", "task:updated"}, events.names())
	assert.Equal(t, []string{
		"store:create", "broadcast:task:created",
		"store:save", "broadcast:task:completed", "broadcast:task:updated",
	}, log.all())
}

func TestService_UpdateStatus_NonCompletedOnlyBroadcastsUpdate(t *testing.T) {
	t.Parallel()
	svc, _, events, _ := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Title: "x"}, 7)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, created.ID, StatusInProgress)
	require.NoError(t, err)

	assert.Equal(t, []string{"task:created", "task:updated"}, events.names())
}

func TestService_UpdateStatus_AllowsAnyTransition(t *testing.T) {
	t.Parallel()
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Title: "x", Status: StatusCompleted}, 7)
	require.NoError(t, err)

	reopened, err := svc.UpdateStatus(ctx, created.ID, StatusOpen)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, reopened.Status)

	again, err := svc.UpdateStatus(ctx, created.ID, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, again.Status)
}

func TestService_UpdateStatus_RejectsUnknownStatus(t *testing.T) {
	t.Parallel()
	svc, _, _, _ := newTestService()

	_, err := svc.UpdateStatus(context.Background(), 1, Status("archived"))
	require.Error(t, err)

	var verrs validate.Errors
	assert.True(t, errors.As(err, &verrs))
}

func TestService_UpdateStatus_StoreFailureSkipsBroadcast(t *testing.T) {
	t.Parallel()
	svc, store, events, _ := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Title: "x"}, 7)
	require.NoError(t, err)

	store.failErr = errors.New("locked")
	_, err = svc.UpdateStatus(ctx, created.ID, StatusCompleted)
	require.Error(t, err)

	assert.Equal(t, []string{"task:created"}, events.names())
}

func TestService_UpdateStatus_BroadcastFailureStillReturnsTask(t *testing.T) {
	t.Parallel()
	svc, _, events, _ := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Title: "x"}, 7)
	require.NoError(t, err)

	events.err = errors.New("no route")
	updated, err := svc.UpdateStatus(ctx, created.ID, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)
	assert.Equal(t, []string{"task:created", "task:completed", "task:updated"}, events.names())
}

func TestService_Remove_DeletesWithoutBroadcast(t *testing.T) {
	t.Parallel()
	svc, _, events, _ := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Title: "x"}, 7)
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, created.ID))

	_, err = svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"task:created"}, events.names())
}

func TestService_Remove_UnknownIDReturnsNotFound(t *testing.T) {
	t.Parallel()
	svc, _, _, _ := newTestService()

	err := svc.Remove(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_FindByCreatorAndAssignee(t *testing.T) {
	t.Parallel()
	svc, _, events, _ := newTestService()
	ctx := context.Background()

	a, err := svc.Create(ctx, CreateInput{Title: "a", AssigneeID: int64Ptr(8)}, 7)
	require.NoError(t, err)
	b, err := svc.Create(ctx, CreateInput{Title: "b"}, 8)
	require.NoError(t, err)
	sentBefore := len(events.names())

	created, err := svc.FindByCreator(ctx, 7)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, a.ID, created[0].ID)

	assigned, err := svc.FindByAssignee(ctx, 8)
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, a.ID, assigned[0].ID)

	none, err := svc.FindByAssignee(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, b.ID, all[1].ID)

	assert.Len(t, events.names(), sentBefore, "reads must not broadcast")
}

func TestService_NilBroadcasterIsAllowed(t *testing.T) {
	t.Parallel()
	svc := NewService(newMemStore(&journal{}), nil)

	created, err := svc.Create(context.Background(), CreateInput{Title: "quiet"}, 7)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), created.ID, StatusCompleted)
	require.NoError(t, err)
}
