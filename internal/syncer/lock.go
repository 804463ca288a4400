package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// ErrSyncInProgress is returned when another process holds the sync lock for
// the tasklist and the bounded wait expired.
var ErrSyncInProgress = errors.New("sync already in progress for this tasklist")

const lockPollInterval = 100 * time.Millisecond

// acquireLock takes the per-tasklist exclusive file lock. Concurrent CLI
// processes share nothing but the store, so the lock is what keeps two sync
// cycles off the same tasklist.
func (e *Engine) acquireLock(ctx context.Context, tasklistID string) (*flock.Flock, error) {
	if err := os.MkdirAll(e.opts.LockDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	lockPath := filepath.Join(e.opts.LockDir, lockName(tasklistID))
	fl := flock.New(lockPath)

	lockCtx, cancel := context.WithTimeout(ctx, e.opts.LockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(lockCtx, lockPollInterval)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !locked {
		return nil, ErrSyncInProgress
	}

	return fl, nil
}

// lockName flattens a tasklist id into a safe filename
func lockName(tasklistID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, tasklistID)
	return safe + ".lock"
}
