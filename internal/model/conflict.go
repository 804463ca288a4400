package model

import (
	"time"
)

// ConflictEntry records one side of an edit that lost a conflict during sync.
// Entries are append-only and exist for user visibility, not for replay.
type ConflictEntry struct {
	ID         int64     `json:"id"`
	TaskID     string    `json:"task_id"`
	TasklistID string    `json:"tasklist_id"`
	Field      string    `json:"field"`
	Discarded  string    `json:"discarded"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Conflict reasons as stored in the log.
const (
	ReasonRemoteNewer   = "remote_newer"
	ReasonRemoteDeleted = "remote_deleted"
)
