// Package syncer reconciles the local task store against the remote gateway.
//
// A sync cycle per tasklist is: pull remote changes and merge them with
// last-writer-wins by updated_at, push pending local changes one at a time,
// then commit the new cursor only if both halves completed. Each per-task
// state transition is committed immediately, so an interrupted cycle is just
// a shorter cycle and the next invocation resumes from where it stopped.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dori/tasca/internal/filter"
	"github.com/dori/tasca/internal/model"
	"github.com/dori/tasca/internal/remote"
	"github.com/dori/tasca/internal/store"
)

// Options configure the sync engine
type Options struct {
	LockDir     string
	LockTimeout time.Duration

	// MaxAttempts bounds retries per remote call, transient failures only
	MaxAttempts uint64

	// RetryBase is the initial backoff between attempts
	RetryBase time.Duration
}

func (o *Options) fill() {
	if o.LockTimeout <= 0 {
		o.LockTimeout = 10 * time.Second
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 5
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 500 * time.Millisecond
	}
}

// Report summarizes one sync cycle for a tasklist. PushWarnings holds
// per-task transient failures that exhausted their retries; those tasks stay
// dirty and are reattempted next cycle.
type Report struct {
	TasklistID   string
	Pulled       int
	Pushed       int
	Conflicts    int
	PushWarnings error
}

// Engine drives sync cycles. Safe for use from a single process; cross-
// process exclusion is handled by the per-tasklist file lock.
type Engine struct {
	store   *store.Store
	gateway remote.Gateway
	log     *zap.Logger
	opts    Options
}

// New creates a sync engine
func New(st *store.Store, gw remote.Gateway, log *zap.Logger, opts Options) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	opts.fill()
	return &Engine{store: st, gateway: gw, log: log, opts: opts}
}

// SyncAll hydrates tasklists from the remote and runs a sync cycle for each.
// An AuthError aborts the whole run; anything else is confined to its
// tasklist.
func (e *Engine) SyncAll(ctx context.Context) ([]Report, error) {
	var lists []model.Tasklist
	err := e.withRetry(ctx, func(ctx context.Context) error {
		var err error
		lists, err = e.gateway.ListTasklists(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list remote tasklists: %w", err)
	}

	for _, l := range lists {
		if err := e.store.UpsertTasklist(l); err != nil {
			return nil, fmt.Errorf("failed to store tasklist %s: %w", l.ID, err)
		}
	}

	var reports []Report
	for _, l := range lists {
		report, err := e.SyncTasklist(ctx, l.ID)
		if err != nil {
			if remote.IsAuth(err) {
				return reports, err
			}
			e.log.Warn("tasklist sync failed",
				zap.String("tasklist", l.ID), zap.Error(err))
			continue
		}
		reports = append(reports, *report)
	}

	return reports, nil
}

// SyncTasklist runs one sync cycle for a single tasklist. Only AuthError,
// store corruption and lock contention surface as errors; per-task transient
// failures become report warnings.
func (e *Engine) SyncTasklist(ctx context.Context, tasklistID string) (*Report, error) {
	lock, err := e.acquireLock(ctx, tasklistID)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	if err := e.store.CheckIntegrity(); err != nil {
		return nil, err
	}
	if _, err := e.store.GetTasklist(tasklistID); err != nil {
		return nil, fmt.Errorf("tasklist %s: %w", tasklistID, err)
	}

	report := &Report{TasklistID: tasklistID}
	log := e.log.With(zap.String("tasklist", tasklistID))

	// Pull
	cursor, err := e.store.Cursor(tasklistID)
	if err != nil {
		return nil, fmt.Errorf("failed to read cursor: %w", err)
	}

	var changes []remote.RemoteTask
	newCursor := cursor
	pullOK := true

	err = e.withRetry(ctx, func(ctx context.Context) error {
		var err error
		changes, newCursor, err = e.gateway.FetchChanges(ctx, tasklistID, cursor)
		return err
	})
	switch {
	case err == nil:
		for _, rt := range changes {
			conflicted, err := e.applyRemote(log, rt)
			if err != nil {
				return nil, fmt.Errorf("failed to apply remote change %s: %w", rt.ID, err)
			}
			report.Pulled++
			if conflicted {
				report.Conflicts++
			}
		}
	case remote.IsAuth(err):
		return nil, err
	default:
		// Transient even after retries; push still runs, cursor stays put
		pullOK = false
		report.PushWarnings = multierr.Append(report.PushWarnings, err)
		log.Warn("pull failed, will retry next cycle", zap.Error(err))
	}

	// Push
	pending, err := e.store.PendingChanges(tasklistID)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending changes: %w", err)
	}

	pushOK := true
	for _, t := range pending {
		err := e.pushTask(ctx, log, t)
		switch {
		case err == nil:
			report.Pushed++
		case remote.IsAuth(err):
			return nil, err
		default:
			pushOK = false
			report.PushWarnings = multierr.Append(report.PushWarnings,
				fmt.Errorf("task %s: %w", t.ID, err))
			log.Warn("push failed, task stays dirty",
				zap.String("task", t.ID), zap.Error(err))
		}
	}

	// Commit the cursor only after a clean pull and push, so a partial
	// failure re-derives from the old cursor next cycle. Reprocessing is
	// safe: the pull merge is idempotent.
	if pullOK && pushOK && newCursor != cursor {
		if err := e.store.SetCursor(tasklistID, newCursor); err != nil {
			return nil, fmt.Errorf("failed to commit cursor: %w", err)
		}
	}

	log.Info("sync cycle complete",
		zap.Int("pulled", report.Pulled),
		zap.Int("pushed", report.Pushed),
		zap.Int("conflicts", report.Conflicts))

	return report, nil
}

// applyRemote merges one remote change into the store. Idempotent: applying
// the same change twice leaves the store unchanged. Returns true when a
// conflict was resolved.
func (e *Engine) applyRemote(log *zap.Logger, rt remote.RemoteTask) (bool, error) {
	local, err := e.store.GetTask(rt.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, err
	}

	// No local copy
	if local == nil {
		if rt.Deleted {
			return false, nil
		}
		return false, e.store.UpsertTask(fromRemote(rt))
	}

	// Remote tombstone: deletion wins; a pending local edit is preserved in
	// the conflict log, not replayed.
	if rt.Deleted {
		conflicted := false
		if local.SyncState == model.StateDirtyLocal {
			e.logDiscarded(local, &rt, model.ReasonRemoteDeleted)
			conflicted = true
			log.Debug("remote deletion discarded local edit", zap.String("task", local.ID))
		}
		return conflicted, e.store.Remove(local.ID)
	}

	// No pending local change: remote is authoritative
	if local.SyncState == model.StateSynced {
		merged := fromRemote(rt)
		merged.CreatedAt = local.CreatedAt
		return false, e.store.UpsertTask(merged)
	}

	// Both sides changed since the last sync: last writer wins
	if rt.UpdatedAt.After(local.UpdatedAt) {
		e.logDiscarded(local, &rt, model.ReasonRemoteNewer)
		merged := fromRemote(rt)
		merged.CreatedAt = local.CreatedAt
		log.Debug("conflict resolved for remote", zap.String("task", local.ID))
		return true, e.store.UpsertTask(merged)
	}

	// Local edit is newer; it stays dirty and the push half sends it
	log.Debug("conflict resolved for local", zap.String("task", local.ID))
	return true, nil
}

// pushTask sends one pending change, committing the local state transition
// immediately on success so a cancelled cycle leaves a resumable prefix.
func (e *Engine) pushTask(ctx context.Context, log *zap.Logger, t model.Task) error {
	switch t.SyncState {
	case model.StatePendingDelete:
		err := e.withRetry(ctx, func(ctx context.Context) error {
			return e.gateway.Delete(ctx, t.TasklistID, t.ID)
		})
		if err != nil && !remote.IsNotFound(err) {
			return err
		}
		// Remote already gone counts as done
		return e.store.Remove(t.ID)

	case model.StateDirtyLocal:
		if t.IsLocalOnly() {
			return e.pushCreate(ctx, t)
		}

		var updatedAt time.Time
		err := e.withRetry(ctx, func(ctx context.Context) error {
			var err error
			updatedAt, err = e.gateway.Update(ctx, t)
			return err
		})
		if remote.IsNotFound(err) {
			// Remote row vanished under us: recreate
			log.Debug("remote task gone, recreating", zap.String("task", t.ID))
			return e.pushCreate(ctx, t)
		}
		if err != nil {
			return err
		}
		return e.store.MarkSynced(t.ID, "", updatedAt)

	default:
		return fmt.Errorf("task %s has unexpected sync state %s", t.ID, t.SyncState)
	}
}

func (e *Engine) pushCreate(ctx context.Context, t model.Task) error {
	var remoteID string
	var updatedAt time.Time
	err := e.withRetry(ctx, func(ctx context.Context) error {
		var err error
		remoteID, updatedAt, err = e.gateway.Create(ctx, t)
		return err
	})
	if err != nil {
		return err
	}
	return e.store.MarkSynced(t.ID, remoteID, updatedAt)
}

// withRetry runs a remote call with exponential backoff. Only transient
// failures are retried; auth and not-found pass straight through.
func (e *Engine) withRetry(ctx context.Context, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(e.opts.MaxAttempts-1, retry.NewExponential(e.opts.RetryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if remote.IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// logDiscarded records the losing side of a conflict when it is non-trivial
// (title or notes differ). A report for the user, not a retry queue.
func (e *Engine) logDiscarded(local *model.Task, rt *remote.RemoteTask, reason string) {
	entries := []struct{ field, local, remote string }{
		{"title", local.Title, rt.Title},
		{"notes", local.Notes, rt.Notes},
	}
	for _, d := range entries {
		if d.local == d.remote {
			continue
		}
		err := e.store.LogConflict(model.ConflictEntry{
			TaskID:     local.ID,
			TasklistID: local.TasklistID,
			Field:      d.field,
			Discarded:  d.local,
			Reason:     reason,
		})
		if err != nil {
			e.log.Warn("failed to record conflict", zap.String("task", local.ID), zap.Error(err))
		}
	}
}

// fromRemote converts a remote task to its cached form, re-deriving tags
// from the text.
func fromRemote(rt remote.RemoteTask) model.Task {
	return model.Task{
		ID:          rt.ID,
		TasklistID:  rt.TasklistID,
		Title:       rt.Title,
		Notes:       rt.Notes,
		Due:         rt.Due,
		Completed:   rt.Completed,
		CompletedAt: rt.CompletedAt,
		Position:    rt.Position,
		Tags:        filter.ExtractTags(rt.Title + "\n" + rt.Notes),
		SyncState:   model.StateSynced,
		CreatedAt:   rt.UpdatedAt,
		UpdatedAt:   rt.UpdatedAt,
	}
}
