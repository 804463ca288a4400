// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dori/tasca/internal/model"
	"github.com/dori/tasca/internal/remote"
)

// FakeGateway is an in-memory implementation of remote.Gateway for testing.
// Error injection fields let tests fail individual calls; when an injected
// error slice runs out, calls succeed again, which models a transient outage.
type FakeGateway struct {
	mu     sync.Mutex
	lists  []model.Tasklist
	tasks  map[string]map[string]remote.RemoteTask // tasklistID -> taskID -> task
	nextID int
	clock  time.Time

	// Error injection: popped one per call to the matching method
	FetchErrs  []error
	CreateErrs []error
	UpdateErrs []error
	DeleteErrs []error
	ListErrs   []error

	// Call counters
	FetchCalls  int
	CreateCalls int
	UpdateCalls int
	DeleteCalls int
}

// NewFakeGateway creates a fake remote with the given tasklists
func NewFakeGateway(listIDs ...string) *FakeGateway {
	fg := &FakeGateway{
		tasks: make(map[string]map[string]remote.RemoteTask),
		clock: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	for _, id := range listIDs {
		fg.lists = append(fg.lists, model.Tasklist{
			ID:        id,
			Title:     id,
			SyncState: model.StateSynced,
			UpdatedAt: fg.clock,
		})
		fg.tasks[id] = make(map[string]remote.RemoteTask)
	}
	return fg
}

// Put seeds or overwrites a remote task directly, advancing the fake clock
func (f *FakeGateway) Put(rt remote.RemoteTask) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rt.UpdatedAt.IsZero() {
		rt.UpdatedAt = f.tick()
	}
	f.tasks[rt.TasklistID][rt.ID] = rt
}

// Tombstone marks a remote task deleted
func (f *FakeGateway) Tombstone(tasklistID, taskID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt := f.tasks[tasklistID][taskID]
	rt.ID = taskID
	rt.TasklistID = tasklistID
	rt.Deleted = true
	rt.UpdatedAt = f.tick()
	f.tasks[tasklistID][taskID] = rt
}

// Task returns a remote task and whether it exists
func (f *FakeGateway) Task(tasklistID, taskID string) (remote.RemoteTask, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt, ok := f.tasks[tasklistID][taskID]
	return rt, ok
}

// FetchChanges implements remote.Gateway
func (f *FakeGateway) FetchChanges(ctx context.Context, tasklistID, cursor string) ([]remote.RemoteTask, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FetchCalls++
	if err := pop(&f.FetchErrs); err != nil {
		return nil, "", err
	}

	listTasks, ok := f.tasks[tasklistID]
	if !ok {
		return nil, "", &remote.NotFoundError{Op: "fetch_changes", ID: tasklistID}
	}

	var since time.Time
	if cursor != "" {
		parsed, err := time.Parse(time.RFC3339Nano, cursor)
		if err != nil {
			return nil, "", fmt.Errorf("bad cursor %q: %w", cursor, err)
		}
		since = parsed
	}

	newCursor := since
	var changed []remote.RemoteTask
	for _, rt := range listTasks {
		if rt.UpdatedAt.After(since) {
			changed = append(changed, rt)
			if rt.UpdatedAt.After(newCursor) {
				newCursor = rt.UpdatedAt
			}
		}
	}
	sort.Slice(changed, func(i, j int) bool {
		return changed[i].UpdatedAt.Before(changed[j].UpdatedAt)
	})

	if newCursor.IsZero() {
		newCursor = f.clock
	}
	return changed, newCursor.Format(time.RFC3339Nano), nil
}

// Create implements remote.Gateway
func (f *FakeGateway) Create(ctx context.Context, t model.Task) (string, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateCalls++
	if err := pop(&f.CreateErrs); err != nil {
		return "", time.Time{}, err
	}

	listTasks, ok := f.tasks[t.TasklistID]
	if !ok {
		return "", time.Time{}, &remote.NotFoundError{Op: "create", ID: t.TasklistID}
	}

	f.nextID++
	id := fmt.Sprintf("remote-%d", f.nextID)
	now := f.tick()
	listTasks[id] = remote.RemoteTask{
		ID:          id,
		TasklistID:  t.TasklistID,
		Title:       t.Title,
		Notes:       t.Notes,
		Due:         t.Due,
		Completed:   t.Completed,
		CompletedAt: t.CompletedAt,
		Position:    t.Position,
		UpdatedAt:   now,
	}
	return id, now, nil
}

// Update implements remote.Gateway
func (f *FakeGateway) Update(ctx context.Context, t model.Task) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UpdateCalls++
	if err := pop(&f.UpdateErrs); err != nil {
		return time.Time{}, err
	}

	listTasks, ok := f.tasks[t.TasklistID]
	if !ok {
		return time.Time{}, &remote.NotFoundError{Op: "update", ID: t.TasklistID}
	}
	existing, ok := listTasks[t.ID]
	if !ok || existing.Deleted {
		return time.Time{}, &remote.NotFoundError{Op: "update", ID: t.ID}
	}

	now := f.tick()
	existing.Title = t.Title
	existing.Notes = t.Notes
	existing.Due = t.Due
	existing.Completed = t.Completed
	existing.CompletedAt = t.CompletedAt
	existing.UpdatedAt = now
	listTasks[t.ID] = existing
	return now, nil
}

// Delete implements remote.Gateway
func (f *FakeGateway) Delete(ctx context.Context, tasklistID, remoteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeleteCalls++
	if err := pop(&f.DeleteErrs); err != nil {
		return err
	}

	listTasks, ok := f.tasks[tasklistID]
	if !ok {
		return &remote.NotFoundError{Op: "delete", ID: tasklistID}
	}
	existing, ok := listTasks[remoteID]
	if !ok || existing.Deleted {
		return &remote.NotFoundError{Op: "delete", ID: remoteID}
	}

	existing.Deleted = true
	existing.UpdatedAt = f.tick()
	listTasks[remoteID] = existing
	return nil
}

// ListTasklists implements remote.Gateway
func (f *FakeGateway) ListTasklists(ctx context.Context) ([]model.Tasklist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := pop(&f.ListErrs); err != nil {
		return nil, err
	}
	result := make([]model.Tasklist, len(f.lists))
	copy(result, f.lists)
	return result, nil
}

// tick advances the fake clock; every mutation gets a distinct timestamp
func (f *FakeGateway) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}
