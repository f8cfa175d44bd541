package store

import (
	"github.com/btouchard/taskpulse/internal/task"
	"github.com/btouchard/taskpulse/internal/user"
)

// Store is everything the server persists.
type Store interface {
	task.Store
	user.Store
	Close() error
}

var (
	_ Store      = (*SQLiteStore)(nil)
	_ task.Store = (*Cache)(nil)
)

// migrations are applied in order; index i holds schema version i+1.
var migrations = []string{
	`CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'open'
			CHECK (status IN ('open', 'in_progress', 'completed')),
		priority TEXT NOT NULL DEFAULT 'medium'
			CHECK (priority IN ('low', 'medium', 'high')),
		due_date TEXT,
		creator_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		assignee_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX idx_tasks_creator ON tasks(creator_id);
	CREATE INDEX idx_tasks_assignee ON tasks(assignee_id)`,
}
