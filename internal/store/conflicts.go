package store

import (
	"time"

	"github.com/dori/tasca/internal/model"
)

// LogConflict appends an entry to the conflict log
func (s *Store) LogConflict(e model.ConflictEntry) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	_, err := s.Exec(`
		INSERT INTO conflict_log (task_id, tasklist_id, field, discarded, reason, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.TaskID, e.TasklistID, e.Field, e.Discarded, e.Reason, e.OccurredAt)
	return err
}

// Conflicts returns logged conflicts, newest first. An empty tasklistID
// returns entries for all tasklists.
func (s *Store) Conflicts(tasklistID string) ([]model.ConflictEntry, error) {
	query := `
		SELECT id, task_id, tasklist_id, field, discarded, reason, occurred_at
		FROM conflict_log`
	args := []interface{}{}
	if tasklistID != "" {
		query += ` WHERE tasklist_id = ?`
		args = append(args, tasklistID)
	}
	query += ` ORDER BY occurred_at DESC, id DESC`

	rows, err := s.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.ConflictEntry
	for rows.Next() {
		var e model.ConflictEntry
		err := rows.Scan(&e.ID, &e.TaskID, &e.TasklistID, &e.Field, &e.Discarded,
			&e.Reason, &e.OccurredAt)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
