package model

import (
	"time"
)

// Tasklist represents a named container of tasks, mirrored from the remote service
type Tasklist struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	SyncState SyncState `json:"sync_state"`
	UpdatedAt time.Time `json:"updated_at"`

	// Computed fields (not stored)
	TaskCount      int `json:"task_count,omitempty"`
	CompletedCount int `json:"completed_count,omitempty"`
}
