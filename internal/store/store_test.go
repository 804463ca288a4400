package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dori/tasca/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedTasklist(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.UpsertTasklist(model.Tasklist{
		ID:        id,
		Title:     "List " + id,
		SyncState: model.StateSynced,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Failed to seed tasklist: %v", err)
	}
}

func TestCreateTaskAssignsLocalPlaceholder(t *testing.T) {
	s := openTestStore(t)
	seedTasklist(t, s, "inbox")

	created, err := s.CreateTask(model.Task{
		TasklistID: "inbox",
		Title:      "Buy groceries #errands",
		Tags:       []string{"errands"},
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	if !created.IsLocalOnly() {
		t.Errorf("expected local placeholder id, got %q", created.ID)
	}
	if created.SyncState != model.StateDirtyLocal {
		t.Errorf("expected dirty_local, got %s", created.SyncState)
	}

	got, err := s.GetTask(created.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Title != "Buy groceries #errands" {
		t.Errorf("unexpected title %q", got.Title)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "errands" {
		t.Errorf("tags not round-tripped: %v", got.Tags)
	}
}

func TestCreateTaskRejectsMissingTasklist(t *testing.T) {
	s := openTestStore(t)

	_, err := s.CreateTask(model.Task{TasklistID: "nope", Title: "Orphan"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateTaskRejectsEmptyTitle(t *testing.T) {
	s := openTestStore(t)
	seedTasklist(t, s, "inbox")

	if _, err := s.CreateTask(model.Task{TasklistID: "inbox", Title: "   "}); err == nil {
		t.Error("expected error for blank title")
	}
}

func TestGetTaskNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetTask("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListTasksOrdering(t *testing.T) {
	s := openTestStore(t)
	seedTasklist(t, s, "inbox")

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	insert := func(id, position string, updated time.Time) {
		err := s.UpsertTask(model.Task{
			ID: id, TasklistID: "inbox", Title: id, Position: position,
			SyncState: model.StateSynced, CreatedAt: base, UpdatedAt: updated,
		})
		if err != nil {
			t.Fatalf("UpsertTask failed: %v", err)
		}
	}

	insert("c", "00002", base)
	insert("b", "00001", base.Add(time.Hour))
	insert("a", "00001", base)

	tasks, err := s.ListTasks("inbox", false)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}

	want := []string{"a", "b", "c"}
	if len(tasks) != len(want) {
		t.Fatalf("expected %d tasks, got %d", len(want), len(tasks))
	}
	for i, id := range want {
		if tasks[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, tasks[i].ID)
		}
	}
}

func TestListTasksExcludesDeleted(t *testing.T) {
	s := openTestStore(t)
	seedTasklist(t, s, "inbox")

	now := time.Now()
	for _, id := range []string{"keep", "gone"} {
		err := s.UpsertTask(model.Task{
			ID: id, TasklistID: "inbox", Title: id,
			SyncState: model.StateSynced, CreatedAt: now, UpdatedAt: now,
		})
		if err != nil {
			t.Fatalf("UpsertTask failed: %v", err)
		}
	}
	if err := s.DeleteLocal("gone"); err != nil {
		t.Fatalf("DeleteLocal failed: %v", err)
	}

	tasks, err := s.ListTasks("inbox", false)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "keep" {
		t.Errorf("expected only 'keep', got %v", tasks)
	}

	all, err := s.ListTasks("inbox", true)
	if err != nil {
		t.Fatalf("ListTasks(all) failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 with deleted included, got %d", len(all))
	}
}

func TestDeleteLocalRemovesNeverPushedOutright(t *testing.T) {
	s := openTestStore(t)
	seedTasklist(t, s, "inbox")

	created, err := s.CreateTask(model.Task{TasklistID: "inbox", Title: "Draft"})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	if err := s.DeleteLocal(created.ID); err != nil {
		t.Fatalf("DeleteLocal failed: %v", err)
	}

	if _, err := s.GetTask(created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("never-pushed task should be gone, got %v", err)
	}

	pending, err := s.PendingChanges("inbox")
	if err != nil {
		t.Fatalf("PendingChanges failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending changes, got %d", len(pending))
	}
}

func TestDeleteLocalMarksSyncedPendingDelete(t *testing.T) {
	s := openTestStore(t)
	seedTasklist(t, s, "inbox")

	now := time.Now()
	err := s.UpsertTask(model.Task{
		ID: "remote-1", TasklistID: "inbox", Title: "Synced",
		SyncState: model.StateSynced, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("UpsertTask failed: %v", err)
	}

	if err := s.DeleteLocal("remote-1"); err != nil {
		t.Fatalf("DeleteLocal failed: %v", err)
	}

	got, err := s.GetTask("remote-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.SyncState != model.StatePendingDelete {
		t.Errorf("expected pending_delete, got %s", got.SyncState)
	}
	if !got.Deleted {
		t.Error("expected deleted flag set")
	}
}

func TestPendingChanges(t *testing.T) {
	s := openTestStore(t)
	seedTasklist(t, s, "inbox")

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	states := map[string]model.SyncState{
		"s1": model.StateSynced,
		"d1": model.StateDirtyLocal,
		"p1": model.StatePendingDelete,
	}
	offset := 0
	for id, state := range states {
		err := s.UpsertTask(model.Task{
			ID: id, TasklistID: "inbox", Title: id,
			SyncState: state, CreatedAt: base, UpdatedAt: base.Add(time.Duration(offset) * time.Minute),
		})
		if err != nil {
			t.Fatalf("UpsertTask failed: %v", err)
		}
		offset++
	}

	pending, err := s.PendingChanges("inbox")
	if err != nil {
		t.Fatalf("PendingChanges failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}
	for _, p := range pending {
		if p.SyncState == model.StateSynced {
			t.Errorf("synced task %s in pending changes", p.ID)
		}
	}
}

func TestMarkDirty(t *testing.T) {
	s := openTestStore(t)
	seedTasklist(t, s, "inbox")

	stamp := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	err := s.UpsertTask(model.Task{
		ID: "remote-1", TasklistID: "inbox", Title: "Synced",
		SyncState: model.StateSynced, CreatedAt: stamp, UpdatedAt: stamp,
	})
	if err != nil {
		t.Fatalf("UpsertTask failed: %v", err)
	}

	if err := s.MarkDirty("remote-1"); err != nil {
		t.Fatalf("MarkDirty failed: %v", err)
	}

	got, err := s.GetTask("remote-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.SyncState != model.StateDirtyLocal {
		t.Errorf("expected dirty_local, got %s", got.SyncState)
	}
	if !got.UpdatedAt.After(stamp) {
		t.Error("MarkDirty should advance updated_at")
	}

	if err := s.MarkDirty("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkSyncedRewritesPlaceholderID(t *testing.T) {
	s := openTestStore(t)
	seedTasklist(t, s, "inbox")

	created, err := s.CreateTask(model.Task{TasklistID: "inbox", Title: "New"})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	stamp := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	if err := s.MarkSynced(created.ID, "remote-42", stamp); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}

	if _, err := s.GetTask(created.ID); !errors.Is(err, ErrNotFound) {
		t.Error("placeholder id should be gone")
	}

	got, err := s.GetTask("remote-42")
	if err != nil {
		t.Fatalf("GetTask(remote id) failed: %v", err)
	}
	if got.SyncState != model.StateSynced {
		t.Errorf("expected synced, got %s", got.SyncState)
	}
	if !got.UpdatedAt.Equal(stamp) {
		t.Errorf("expected updated_at %v, got %v", stamp, got.UpdatedAt)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	s := openTestStore(t)
	seedTasklist(t, s, "inbox")

	cursor, err := s.Cursor("inbox")
	if err != nil {
		t.Fatalf("Cursor failed: %v", err)
	}
	if cursor != "" {
		t.Errorf("expected empty cursor before first sync, got %q", cursor)
	}

	if err := s.SetCursor("inbox", "2024-05-01T12:00:00Z"); err != nil {
		t.Fatalf("SetCursor failed: %v", err)
	}
	if err := s.SetCursor("inbox", "2024-05-02T12:00:00Z"); err != nil {
		t.Fatalf("SetCursor overwrite failed: %v", err)
	}

	cursor, err = s.Cursor("inbox")
	if err != nil {
		t.Fatalf("Cursor failed: %v", err)
	}
	if cursor != "2024-05-02T12:00:00Z" {
		t.Errorf("unexpected cursor %q", cursor)
	}

	if err := s.ClearCursor("inbox"); err != nil {
		t.Fatalf("ClearCursor failed: %v", err)
	}
	cursor, _ = s.Cursor("inbox")
	if cursor != "" {
		t.Errorf("expected empty cursor after clear, got %q", cursor)
	}
}

func TestConflictLogAppendOnly(t *testing.T) {
	s := openTestStore(t)

	for i, field := range []string{"title", "notes"} {
		err := s.LogConflict(model.ConflictEntry{
			TaskID:     "remote-1",
			TasklistID: "inbox",
			Field:      field,
			Discarded:  "old value",
			Reason:     model.ReasonRemoteNewer,
			OccurredAt: time.Date(2024, 5, 1, 10, i, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("LogConflict failed: %v", err)
		}
	}

	entries, err := s.Conflicts("inbox")
	if err != nil {
		t.Fatalf("Conflicts failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	// Newest first
	if entries[0].Field != "notes" {
		t.Errorf("expected newest entry first, got %s", entries[0].Field)
	}

	other, err := s.Conflicts("elsewhere")
	if err != nil {
		t.Fatalf("Conflicts failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no entries for other tasklist, got %d", len(other))
	}
}

func TestCheckIntegrityDetectsOrphans(t *testing.T) {
	s := openTestStore(t)
	seedTasklist(t, s, "inbox")

	now := time.Now()
	err := s.UpsertTask(model.Task{
		ID: "t1", TasklistID: "inbox", Title: "Fine",
		SyncState: model.StateSynced, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("UpsertTask failed: %v", err)
	}

	if err := s.CheckIntegrity(); err != nil {
		t.Fatalf("expected clean integrity check, got %v", err)
	}

	// Orphan a task behind the FK's back to simulate corruption
	if _, err := s.Exec(`PRAGMA foreign_keys=OFF`); err != nil {
		t.Fatalf("pragma failed: %v", err)
	}
	if _, err := s.Exec(`UPDATE tasks SET tasklist_id = 'missing' WHERE id = 't1'`); err != nil {
		t.Fatalf("corruption seed failed: %v", err)
	}

	if err := s.CheckIntegrity(); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}

func TestUpsertTaskIsAtomicOverwrite(t *testing.T) {
	s := openTestStore(t)
	seedTasklist(t, s, "inbox")

	now := time.Now()
	task := model.Task{
		ID: "remote-1", TasklistID: "inbox", Title: "Before", Notes: "old notes",
		SyncState: model.StateSynced, CreatedAt: now, UpdatedAt: now,
	}
	if err := s.UpsertTask(task); err != nil {
		t.Fatalf("UpsertTask failed: %v", err)
	}

	task.Title = "After"
	task.Notes = ""
	task.UpdatedAt = now.Add(time.Minute)
	if err := s.UpsertTask(task); err != nil {
		t.Fatalf("UpsertTask overwrite failed: %v", err)
	}

	got, err := s.GetTask("remote-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Title != "After" || got.Notes != "" {
		t.Errorf("overwrite not full-row: title=%q notes=%q", got.Title, got.Notes)
	}
}
