// Package lock serializes runs that share a tracking file. Two gms processes
// syncing the same platform would otherwise race on the cursor.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrLockTimeout is returned when another process holds the lock past the
// caller's deadline.
var ErrLockTimeout = errors.New("tracking file is locked by another process")

// pollInterval is how often a contended lock is retried.
const pollInterval = 10 * time.Millisecond

// FileLock is an advisory, exclusive, cross-process lock.
type FileLock struct {
	path string
	file *os.File
}

// New creates a lock guarding target. The lock is not acquired until Lock is
// called. The lock file lives at target + ".lock".
func New(target string) *FileLock {
	return &FileLock{path: target + ".lock"}
}

// Path returns the lock file location.
func (l *FileLock) Path() string { return l.path }

// Lock acquires the lock, waiting at most timeout. A zero timeout tries once.
// It returns ErrLockTimeout when the wait runs out and ctx.Err() when ctx is
// cancelled first.
func (l *FileLock) Lock(ctx context.Context, timeout time.Duration) error {
	if l.file != nil {
		return fmt.Errorf("lock %s: already held", l.path)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		if err := tryLock(f); err == nil {
			l.file = f
			return nil
		}
		if !time.Now().Before(deadline) {
			f.Close()
			return ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			f.Close()
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Unlock releases the lock. Unlocking a lock that is not held is a no-op.
//
// The lock file stays on disk. Removing it would let a waiter lock the
// unlinked inode while a newcomer locks a fresh file at the same path.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	unlockErr := unlock(l.file)
	closeErr := l.file.Close()
	l.file = nil
	if unlockErr != nil {
		return fmt.Errorf("unlock %s: %w", l.path, unlockErr)
	}
	return closeErr
}
