package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/btouchard/taskpulse/internal/task"
	"github.com/btouchard/taskpulse/internal/user"
)

const (
	timeFormat = time.RFC3339Nano
	memoryPath = ":memory:"
)

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, zero CGO).
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
// The database file is created with 0600 permissions and its parent directory with 0700.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != memoryPath {
		if err := prepareFile(path); err != nil {
			return nil, err
		}
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func prepareFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("creating database file: %w", err)
		}
		_ = f.Close()
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		slog.Info("applying migration", "version", i+1)
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Tasks ---

const (
	taskColumns = `t.id, t.title, t.description, t.status, t.priority, t.due_date,
		t.creator_id, t.assignee_id, t.created_at, t.updated_at`
	userColumns = `c.username, c.full_name, c.avatar_url,
		a.username, a.full_name, a.avatar_url`
	userJoins = ` LEFT JOIN users c ON c.id = t.creator_id
		LEFT JOIN users a ON a.id = t.assignee_id`
)

func selectTasks(fetch task.Fetch) string {
	if fetch == task.FetchWithUsers {
		return "SELECT " + taskColumns + ", " + userColumns + " FROM tasks t" + userJoins
	}
	return "SELECT " + taskColumns + " FROM tasks t"
}

func (s *SQLiteStore) CreateTask(ctx context.Context, t *task.Task) (*task.Task, error) {
	now := formatTime(s.now())
	res, err := s.db.ExecContext(ctx, `INSERT INTO tasks (title, description, status, priority, due_date,
		creator_id, assignee_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Title, t.Description, t.Status, t.Priority, nullTime(t.DueDate),
		t.CreatorID, nullID(t.AssigneeID), now, now)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, s.unknownTaskUser(ctx, t.CreatorID)
		}
		return nil, fmt.Errorf("inserting task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading task id: %w", err)
	}

	return s.GetTask(ctx, id, task.FetchWithUsers)
}

// unknownTaskUser tells which side of a task insert referenced a missing
// user. SQLite reports foreign key failures without naming the column.
func (s *SQLiteStore) unknownTaskUser(ctx context.Context, creatorID int64) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)", creatorID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking task creator: %w", err)
	}
	if !exists {
		return task.ErrUnknownCreator
	}
	return task.ErrUnknownAssignee
}

func (s *SQLiteStore) GetTask(ctx context.Context, id int64, fetch task.Fetch) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, selectTasks(fetch)+" WHERE t.id = ?", id)
	t, err := scanTask(row, fetch)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, task.ErrNotFound)
	}
	return t, err
}

func (s *SQLiteStore) ListTasks(ctx context.Context, f task.Filter) ([]task.Task, error) {
	query := selectTasks(f.Fetch) + " WHERE 1=1"
	var args []any

	if f.CreatorID != 0 {
		query += " AND t.creator_id = ?"
		args = append(args, f.CreatorID)
	}
	if f.AssigneeID != 0 {
		query += " AND t.assignee_id = ?"
		args = append(args, f.AssigneeID)
	}

	query += " ORDER BY t.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tasks := []task.Task{}
	for rows.Next() {
		t, err := scanTask(rows, f.Fetch)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// SaveTask writes every mutable column. The creator and creation time are
// never rewritten.
func (s *SQLiteStore) SaveTask(ctx context.Context, t *task.Task) (*task.Task, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET
		title = ?, description = ?, status = ?, priority = ?,
		due_date = ?, assignee_id = ?, updated_at = ?
		WHERE id = ?`,
		t.Title, t.Description, t.Status, t.Priority,
		nullTime(t.DueDate), nullID(t.AssigneeID), formatTime(s.now()),
		t.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			// creator_id is never rewritten, so only the assignee can dangle.
			return nil, task.ErrUnknownAssignee
		}
		return nil, fmt.Errorf("updating task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("task %d: %w", t.ID, task.ErrNotFound)
	}

	return s.GetTask(ctx, t.ID, task.FetchWithUsers)
}

func (s *SQLiteStore) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("task %d: %w", id, task.ErrNotFound)
	}
	return nil
}

// --- Users ---

func (s *SQLiteStore) CreateUser(ctx context.Context, u *user.User) (*user.User, error) {
	now := formatTime(s.now())
	res, err := s.db.ExecContext(ctx, `INSERT INTO users (username, email, full_name, avatar_url, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.Username, u.Email, u.FullName, u.AvatarURL, boolToInt(u.IsActive), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, user.ErrConflict
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading user id: %w", err)
	}
	return s.GetUser(ctx, id)
}

func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*user.User, error) {
	var u user.User
	var active int
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, `SELECT id, username, email, full_name, avatar_url, is_active, created_at, updated_at
		FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.AvatarURL, &active, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.IsActive = active != 0
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return &u, nil
}

// --- Helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner, fetch task.Fetch) (*task.Task, error) {
	var t task.Task
	var status, priority, createdAt, updatedAt string
	var dueDate sql.NullString
	var assigneeID sql.NullInt64

	dest := []any{&t.ID, &t.Title, &t.Description, &status, &priority, &dueDate,
		&t.CreatorID, &assigneeID, &createdAt, &updatedAt}

	var creator, assignee userCols
	if fetch == task.FetchWithUsers {
		dest = append(dest, creator.dest()...)
		dest = append(dest, assignee.dest()...)
	}

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning task: %w", err)
	}

	t.Status = task.Status(status)
	t.Priority = task.Priority(priority)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	if dueDate.Valid {
		due := parseTime(dueDate.String)
		t.DueDate = &due
	}
	if assigneeID.Valid {
		id := assigneeID.Int64
		t.AssigneeID = &id
	}

	if fetch == task.FetchWithUsers {
		t.Creator = creator.ref(t.CreatorID)
		if t.AssigneeID != nil {
			t.Assignee = assignee.ref(*t.AssigneeID)
		}
	}

	return &t, nil
}

// userCols receives the LEFT JOINed user summary columns.
type userCols struct {
	username, fullName, avatarURL sql.NullString
}

func (u *userCols) dest() []any {
	return []any{&u.username, &u.fullName, &u.avatarURL}
}

func (u *userCols) ref(id int64) *task.UserRef {
	if !u.username.Valid {
		return nil
	}
	return &task.UserRef{
		ID:        id,
		Username:  u.username.String,
		FullName:  u.fullName.String,
		AvatarURL: u.avatarURL.String,
	}
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeFormat, s)
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
