package store

import (
	"database/sql"

	"github.com/dori/tasca/internal/model"
)

// GetTasklist returns a single tasklist by ID
func (s *Store) GetTasklist(id string) (*model.Tasklist, error) {
	var l model.Tasklist

	err := s.QueryRow(`
		SELECT id, title, sync_state, updated_at
		FROM tasklists WHERE id = ?
	`, id).Scan(&l.ID, &l.Title, &l.SyncState, &l.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &l, nil
}

// ListTasklists returns all tasklists with task counts
func (s *Store) ListTasklists() ([]model.Tasklist, error) {
	rows, err := s.Query(`
		SELECT l.id, l.title, l.sync_state, l.updated_at,
		       (SELECT COUNT(*) FROM tasks WHERE tasklist_id = l.id AND deleted = 0) as task_count,
		       (SELECT COUNT(*) FROM tasks WHERE tasklist_id = l.id AND deleted = 0 AND completed = 1) as completed_count
		FROM tasklists l
		ORDER BY l.title
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lists []model.Tasklist
	for rows.Next() {
		var l model.Tasklist
		err := rows.Scan(&l.ID, &l.Title, &l.SyncState, &l.UpdatedAt,
			&l.TaskCount, &l.CompletedCount)
		if err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}

	return lists, rows.Err()
}

// UpsertTasklist overwrites a tasklist row by id
func (s *Store) UpsertTasklist(l model.Tasklist) error {
	return s.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO tasklists (id, title, sync_state, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				sync_state = excluded.sync_state,
				updated_at = excluded.updated_at
		`, l.ID, l.Title, l.SyncState, l.UpdatedAt)
		return err
	})
}
