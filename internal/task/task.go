package task

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/btouchard/taskpulse/internal/validate"
)

var (
	// ErrNotFound is returned when a task id does not resolve to a stored task.
	ErrNotFound = errors.New("task not found")
	// ErrUnknownAssignee is returned when the assignee id names no user.
	ErrUnknownAssignee = errors.New("assignee does not exist")
	// ErrUnknownCreator is returned when the authenticated caller has no
	// user record to own the task.
	ErrUnknownCreator = errors.New("creator is not a registered user")
)

const maxTitleLength = 255

// Status is the lifecycle state of a task. Any status may be written at any
// time; there is no transition graph.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// ParseStatus converts raw input into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	if !s.Valid() {
		return "", validate.Field("status", "must be one of open, in_progress, completed")
	}
	return s, nil
}

// Priority is informational only; nothing orders work by it.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// UserRef is the summary of a user joined onto a task as creator or assignee.
type UserRef struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"fullName,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Task is a unit of work owned by its creator and optionally assigned to
// another user. CreatorID never changes after creation.
type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CreatorID   int64      `json:"creatorId"`
	Creator     *UserRef   `json:"creator,omitempty"`
	AssigneeID  *int64     `json:"assigneeId,omitempty"`
	Assignee    *UserRef   `json:"assignee,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Fetch selects how much of a task's relations a read loads.
type Fetch int

const (
	// FetchTask loads only the task row.
	FetchTask Fetch = iota
	// FetchWithUsers also joins the creator and assignee summaries.
	FetchWithUsers
)

// Filter narrows a task listing. Zero ids match any user.
type Filter struct {
	CreatorID  int64
	AssigneeID int64
	Fetch      Fetch
}

// CreateInput is the accepted payload for creating a task. Any creator field
// a client sends is not part of it; the creator always comes from the
// authenticated caller.
type CreateInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    Priority   `json:"priority,omitempty"`
	Status      Status     `json:"status,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	AssigneeID  *int64     `json:"assigneeId,omitempty"`
}

// Validate rejects malformed input before it reaches the store.
func (in CreateInput) Validate() error {
	var errs validate.Errors

	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		errs.Add("title", "is required")
	case utf8.RuneCountInString(title) > maxTitleLength:
		errs.Add("title", "must be at most 255 characters")
	}
	if in.Priority != "" && !in.Priority.Valid() {
		errs.Add("priority", "must be one of low, medium, high")
	}
	if in.Status != "" && !in.Status.Valid() {
		errs.Add("status", "must be one of open, in_progress, completed")
	}
	if in.AssigneeID != nil && *in.AssigneeID <= 0 {
		errs.Add("assigneeId", "must be a positive user id")
	}

	return errs.Err()
}

// build returns the task to persist, with defaults applied.
func (in CreateInput) build(creatorID int64) *Task {
	t := &Task{
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		DueDate:     in.DueDate,
		CreatorID:   creatorID,
		AssigneeID:  in.AssigneeID,
	}
	if t.Status == "" {
		t.Status = StatusOpen
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	return t
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	AssigneeID  *int64     `json:"assigneeId,omitempty"`
}

func (p Patch) Validate() error {
	var errs validate.Errors

	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		switch {
		case title == "":
			errs.Add("title", "must not be empty")
		case utf8.RuneCountInString(title) > maxTitleLength:
			errs.Add("title", "must be at most 255 characters")
		}
	}
	if p.Priority != nil && !p.Priority.Valid() {
		errs.Add("priority", "must be one of low, medium, high")
	}
	if p.Status != nil && !p.Status.Valid() {
		errs.Add("status", "must be one of open, in_progress, completed")
	}
	if p.AssigneeID != nil && *p.AssigneeID <= 0 {
		errs.Add("assigneeId", "must be a positive user id")
	}

	return errs.Err()
}

// Apply shallow-merges the patch onto t.
func (p Patch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.DueDate != nil {
		due := *p.DueDate
		t.DueDate = &due
	}
	if p.AssigneeID != nil {
		id := *p.AssigneeID
		if t.AssigneeID == nil || *t.AssigneeID != id {
			t.Assignee = nil
		}
		t.AssigneeID = &id
	}
}
