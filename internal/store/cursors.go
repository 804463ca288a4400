package store

import (
	"database/sql"
	"time"
)

// Cursor returns the last committed sync cursor for a tasklist. An empty
// string means no successful sync has completed and a full resync is needed.
func (s *Store) Cursor(tasklistID string) (string, error) {
	var cursor string
	err := s.QueryRow(`
		SELECT cursor FROM sync_cursors WHERE tasklist_id = ?
	`, tasklistID).Scan(&cursor)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return cursor, nil
}

// SetCursor commits a new cursor for a tasklist
func (s *Store) SetCursor(tasklistID, cursor string) error {
	now := time.Now()
	_, err := s.Exec(`
		INSERT INTO sync_cursors (tasklist_id, cursor, synced_at)
		VALUES (?, ?, ?)
		ON CONFLICT(tasklist_id) DO UPDATE SET
			cursor = excluded.cursor,
			synced_at = excluded.synced_at
	`, tasklistID, cursor, now)
	return err
}

// ClearCursor drops the cursor, forcing the next sync to do a full resync
func (s *Store) ClearCursor(tasklistID string) error {
	_, err := s.Exec(`DELETE FROM sync_cursors WHERE tasklist_id = ?`, tasklistID)
	return err
}
