// Package remote defines the gateway contract for the remote task service.
// The sync engine is the only consumer; commands never talk to the remote
// directly.
package remote

import (
	"context"
	"time"

	"github.com/dori/tasca/internal/model"
)

// RemoteTask is a task as reported by the remote service. Deleted marks a
// tombstone returned from an incremental fetch.
type RemoteTask struct {
	ID          string
	TasklistID  string
	Title       string
	Notes       string
	Due         *time.Time
	Completed   bool
	CompletedAt *time.Time
	Position    string
	Deleted     bool
	UpdatedAt   time.Time
}

// Gateway abstracts the remote CRUD API.
//
// Every method fails with *TransientError (retryable), *AuthError (fatal
// without fresh credentials) or *NotFoundError (resolved locally by the
// caller); any other error is treated as transient by the engine.
type Gateway interface {
	// FetchChanges returns tasks changed since the cursor, plus the cursor to
	// commit once the whole cycle succeeds. An empty cursor requests a full
	// listing including tombstones.
	FetchChanges(ctx context.Context, tasklistID, cursor string) ([]RemoteTask, string, error)

	// Create pushes a new task and returns the remote-assigned id and
	// authoritative updated_at.
	Create(ctx context.Context, t model.Task) (string, time.Time, error)

	// Update pushes an edit to an existing remote task.
	Update(ctx context.Context, t model.Task) (time.Time, error)

	// Delete removes a task on the remote.
	Delete(ctx context.Context, tasklistID, remoteID string) error

	// ListTasklists returns all tasklists known to the remote.
	ListTasklists(ctx context.Context) ([]model.Tasklist, error)
}
