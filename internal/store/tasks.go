package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dori/tasca/internal/model"
	"github.com/google/uuid"
)

const taskColumns = `id, tasklist_id, title, notes, due, completed, completed_at,
       position, tags, deleted, sync_state, created_at, updated_at`

// GetTask returns a single task by ID
func (s *Store) GetTask(id string) (*model.Task, error) {
	row := s.QueryRow(`
		SELECT `+taskColumns+`
		FROM tasks WHERE id = ?
	`, id)

	t, err := s.scanTaskRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return t, err
}

// ListTasks returns tasks for a tasklist ordered by position, then updated_at,
// then id. Soft-deleted rows are excluded unless includeDeleted is set.
func (s *Store) ListTasks(tasklistID string, includeDeleted bool) ([]model.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE tasklist_id = ?`
	if !includeDeleted {
		query += ` AND deleted = 0`
	}
	query += `
		ORDER BY position, updated_at, id`

	rows, err := s.Query(query, tasklistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanTasks(rows)
}

// PendingChanges returns tasks with unpushed local changes, oldest edit first
func (s *Store) PendingChanges(tasklistID string) ([]model.Task, error) {
	rows, err := s.Query(`
		SELECT `+taskColumns+`
		FROM tasks
		WHERE tasklist_id = ? AND sync_state IN (?, ?)
		ORDER BY updated_at, id
	`, tasklistID, model.StateDirtyLocal, model.StatePendingDelete)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanTasks(rows)
}

// CreateTask inserts a new local task with a placeholder id. The placeholder
// is registered in the same transaction as the insert, so a crash cannot
// separate the two.
func (s *Store) CreateTask(t model.Task) (*model.Task, error) {
	if strings.TrimSpace(t.Title) == "" {
		return nil, fmt.Errorf("task title must not be empty")
	}

	now := time.Now()
	t.ID = model.LocalIDPrefix + uuid.New().String()
	t.SyncState = model.StateDirtyLocal
	t.CreatedAt = now
	t.UpdatedAt = now

	err := s.Transaction(func(tx *sql.Tx) error {
		var deleted int
		err := tx.QueryRow(`SELECT 0 FROM tasklists WHERE id = ?`, t.TasklistID).Scan(&deleted)
		if err == sql.ErrNoRows {
			return fmt.Errorf("tasklist %s: %w", t.TasklistID, ErrNotFound)
		}
		if err != nil {
			return err
		}

		_, err = tx.Exec(`
			INSERT INTO tasks (id, tasklist_id, title, notes, due, completed, completed_at,
			                   position, tags, deleted, sync_state, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
		`, t.ID, t.TasklistID, t.Title, t.Notes, formatTime(t.Due), boolInt(t.Completed),
			formatTime(t.CompletedAt), t.Position, strings.Join(t.Tags, " "),
			t.SyncState, t.CreatedAt, t.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// UpsertTask overwrites the full row by id in a single transaction
func (s *Store) UpsertTask(t model.Task) error {
	return s.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO tasks (id, tasklist_id, title, notes, due, completed, completed_at,
			                   position, tags, deleted, sync_state, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				tasklist_id = excluded.tasklist_id,
				title = excluded.title,
				notes = excluded.notes,
				due = excluded.due,
				completed = excluded.completed,
				completed_at = excluded.completed_at,
				position = excluded.position,
				tags = excluded.tags,
				deleted = excluded.deleted,
				sync_state = excluded.sync_state,
				updated_at = excluded.updated_at
		`, t.ID, t.TasklistID, t.Title, t.Notes, formatTime(t.Due), boolInt(t.Completed),
			formatTime(t.CompletedAt), t.Position, strings.Join(t.Tags, " "),
			boolInt(t.Deleted), t.SyncState, t.CreatedAt, t.UpdatedAt)
		return err
	})
}

// MarkDirty flags a task as locally edited
func (s *Store) MarkDirty(id string) error {
	now := time.Now()
	res, err := s.Exec(`
		UPDATE tasks SET sync_state = ?, updated_at = ? WHERE id = ?
	`, model.StateDirtyLocal, now, id)
	if err != nil {
		return err
	}
	return checkFound(res)
}

// MarkSynced records a successful push, rewriting the id when the remote
// assigned one for a local placeholder.
func (s *Store) MarkSynced(id, remoteID string, updatedAt time.Time) error {
	if remoteID == "" {
		remoteID = id
	}
	return s.Transaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE tasks SET id = ?, sync_state = ?, updated_at = ? WHERE id = ?
		`, remoteID, model.StateSynced, updatedAt, id)
		if err != nil {
			return err
		}
		if err := checkFound(res); err != nil {
			return err
		}
		if remoteID != id {
			_, err = tx.Exec(`UPDATE conflict_log SET task_id = ? WHERE task_id = ?`, remoteID, id)
		}
		return err
	})
}

// DeleteLocal marks a task for deletion. A task that was never pushed is
// removed outright; a synced one becomes pending_delete until the remote
// confirms.
func (s *Store) DeleteLocal(id string) error {
	return s.Transaction(func(tx *sql.Tx) error {
		var taskID string
		err := tx.QueryRow(`SELECT id FROM tasks WHERE id = ?`, id).Scan(&taskID)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if strings.HasPrefix(taskID, model.LocalIDPrefix) {
			_, err = tx.Exec(`DELETE FROM tasks WHERE id = ?`, id)
			return err
		}

		now := time.Now()
		_, err = tx.Exec(`
			UPDATE tasks SET deleted = 1, sync_state = ?, updated_at = ? WHERE id = ?
		`, model.StatePendingDelete, now, id)
		return err
	})
}

// Remove physically deletes a task row
func (s *Store) Remove(id string) error {
	_, err := s.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	return err
}

// SetTaskCompleted toggles completion and marks the task dirty
func (s *Store) SetTaskCompleted(id string, done bool) error {
	now := time.Now()

	var completedAt interface{}
	if done {
		completedAt = now.Format(time.RFC3339)
	}

	res, err := s.Exec(`
		UPDATE tasks SET completed = ?, completed_at = ?, sync_state = ?, updated_at = ?
		WHERE id = ?
	`, boolInt(done), completedAt, model.StateDirtyLocal, now, id)
	if err != nil {
		return err
	}
	return checkFound(res)
}

// CheckIntegrity verifies that no task references a missing tasklist.
// A violation is fatal to the caller's sync cycle, never repaired here.
func (s *Store) CheckIntegrity() error {
	var orphans int
	err := s.QueryRow(`
		SELECT COUNT(*) FROM tasks t
		LEFT JOIN tasklists l ON t.tasklist_id = l.id
		WHERE l.id IS NULL
	`).Scan(&orphans)
	if err != nil {
		return err
	}
	if orphans > 0 {
		return fmt.Errorf("%w: %d task(s) reference a missing tasklist", ErrCorrupt, orphans)
	}
	return nil
}

// Helper functions

func (s *Store) scanTasks(rows *sql.Rows) ([]model.Task, error) {
	var tasks []model.Task
	for rows.Next() {
		t, err := s.scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanTaskRow(row scanner) (*model.Task, error) {
	var t model.Task
	var notes, due, completedAt *string
	var tags string
	var completed, deleted int

	err := row.Scan(
		&t.ID, &t.TasklistID, &t.Title, &notes, &due, &completed, &completedAt,
		&t.Position, &tags, &deleted, &t.SyncState, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Completed = completed == 1
	t.Deleted = deleted == 1
	if notes != nil {
		t.Notes = *notes
	}
	if tags != "" {
		t.Tags = strings.Fields(tags)
	}
	t.Due = parseTime(due)
	t.CompletedAt = parseTime(completedAt)

	return &t, nil
}

func formatTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func parseTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339, *s); err == nil {
		return &parsed
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checkFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
