package model

import (
	"strings"
	"time"
)

// SyncState tracks where a record stands relative to the remote service
type SyncState string

const (
	StateSynced        SyncState = "synced"
	StateDirtyLocal    SyncState = "dirty_local"
	StatePendingDelete SyncState = "pending_delete"
	StateConflict      SyncState = "conflict"
)

// LocalIDPrefix marks ids assigned locally before the first successful push.
// The remote service replaces them with its own ids.
const LocalIDPrefix = "local-"

// Task represents a cached todo item
type Task struct {
	ID          string     `json:"id"`
	TasklistID  string     `json:"tasklist_id"`
	Title       string     `json:"title"`
	Notes       string     `json:"notes,omitempty"`
	Due         *time.Time `json:"due,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Position    string     `json:"position"`
	Tags        []string   `json:"tags,omitempty"`
	Deleted     bool       `json:"deleted,omitempty"`
	SyncState   SyncState  `json:"sync_state"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsLocalOnly returns true if the task has never been pushed to the remote
func (t *Task) IsLocalOnly() bool {
	return strings.HasPrefix(t.ID, LocalIDPrefix)
}

// HasTag returns true if the task carries the given tag
func (t *Task) HasTag(tag string) bool {
	for _, have := range t.Tags {
		if have == tag {
			return true
		}
	}
	return false
}

// IsOverdue returns true if the task is past its due date
func (t *Task) IsOverdue() bool {
	if t.Due == nil || t.Completed {
		return false
	}
	return time.Now().After(*t.Due)
}

// IsDueToday returns true if the task is due today
func (t *Task) IsDueToday() bool {
	if t.Due == nil {
		return false
	}
	now := time.Now()
	return t.Due.Year() == now.Year() &&
		t.Due.YearDay() == now.YearDay()
}
