package coordinator

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskFilter narrows ListTasks.
type TaskFilter struct {
	Status   string
	Assignee string
}

// UpsertTask creates a task (when ID is empty) or updates an existing
// one, preserving fields the caller left unset. Broadcasts
// "task-update" on success.
func (in *Instance) UpsertTask(t Task, excludeTag string) (*Task, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	now := time.Now()
	if t.ID == "" {
		t.ID = uuid.NewString()
		t.CreatedAt = now
		t.UpdatedAt = now
		if t.Status == "" {
			t.Status = TaskStatusTodo
		}
		if t.Priority == "" {
			t.Priority = "medium"
		}
		_, err := in.db.Exec(`
			INSERT INTO tasks (id, title, description, status, assignee, created_by, priority, tags, files, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Title, nullableStr(t.Description), t.Status, nullableStr(t.Assignee), t.CreatedBy,
			t.Priority, encodeList(t.Tags), encodeList(t.Files), t.CreatedAt.Format(time.RFC3339), t.UpdatedAt.Format(time.RFC3339))
		if err != nil {
			return nil, fmt.Errorf("create task: %w", err)
		}
	} else {
		existing, err := in.getTaskLocked(t.ID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("task not found: %s", t.ID)
		}
		if t.Title == "" {
			t.Title = existing.Title
		}
		if t.Status == "" {
			t.Status = existing.Status
		}
		if t.Priority == "" {
			t.Priority = existing.Priority
		}
		description := coalesceStrTask(t.Description, existing.Description)
		assignee := coalesceStrTask(t.Assignee, existing.Assignee)
		tags := t.Tags
		if tags == nil {
			tags = existing.Tags
		}
		files := t.Files
		if files == nil {
			files = existing.Files
		}
		t.CreatedAt = existing.CreatedAt
		t.UpdatedAt = now
		_, err = in.db.Exec(`
			UPDATE tasks SET title=?, description=?, status=?, assignee=?, priority=?, tags=?, files=?, updated_at=?
			WHERE id=?`,
			t.Title, nullableStr(description), t.Status, nullableStr(assignee), t.Priority,
			encodeList(tags), encodeList(files), t.UpdatedAt.Format(time.RFC3339), t.ID)
		if err != nil {
			return nil, fmt.Errorf("update task: %w", err)
		}
		t.Description = description
		t.Assignee = assignee
		t.Tags = tags
		t.Files = files
	}

	result, err := in.getTaskLocked(t.ID)
	if err != nil {
		return nil, err
	}
	in.broadcast("task-update", result, excludeTag)
	return result, nil
}

func coalesceStrTask(incoming, existing *string) *string {
	if incoming != nil {
		return incoming
	}
	return existing
}

func (in *Instance) getTaskLocked(id string) (*Task, error) {
	row := in.db.QueryRow(`SELECT id, title, description, status, assignee, created_by, priority, tags, files, created_at, updated_at FROM tasks WHERE id=?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns tasks matching the filter, newest first.
func (in *Instance) ListTasks(f TaskFilter) ([]*Task, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	query := `SELECT id, title, description, status, assignee, created_by, priority, tags, files, created_at, updated_at FROM tasks WHERE 1=1`
	var args []any
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Assignee != "" {
		query += ` AND assignee = ?`
		args = append(args, f.Assignee)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := in.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTask(row interface{ Scan(dest ...any) error }) (*Task, error) {
	var t Task
	var description, assignee sql.NullString
	var tags, files, createdAt, updatedAt string

	if err := row.Scan(&t.ID, &t.Title, &description, &t.Status, &assignee, &t.CreatedBy,
		&t.Priority, &tags, &files, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if description.Valid {
		t.Description = &description.String
	}
	if assignee.Valid {
		t.Assignee = &assignee.String
	}
	t.Tags = decodeList(tags)
	t.Files = decodeList(files)
	var err error
	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &t, nil
}
