// Package lock provides the advisory file lock that serializes update
// cycles against one graph.
//
// The lock is cooperative: a JSON lock file created with O_EXCL holds
// the owner's PID and acquisition time. On contention the caller is
// expected to skip its cycle, not queue. Locks left behind by crashed
// processes are detected by PID liveness and a TTL and reclaimed.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

// ErrLocked is returned by TryLock when another live process holds the
// lock.
var ErrLocked = errors.New("another scout process holds the lock")

// staleAfter bounds how long a lock from a live-looking PID is trusted.
// A watch process legitimately cycles often, so one full cycle should
// never take anywhere near this.
const staleAfter = 10 * time.Minute

// lockInfo is the lock file's content, kept for debuggability.
type lockInfo struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// FileLock is an advisory lock backed by a single file.
type FileLock struct {
	path string
	held bool
}

// New creates a lock at the given path without acquiring it.
func New(path string) *FileLock {
	return &FileLock{path: path}
}

// TryLock attempts to acquire the lock without blocking. It returns
// ErrLocked when a live holder exists; stale locks are reclaimed with
// a single retry.
func (l *FileLock) TryLock() error {
	if err := l.acquire(); err == nil {
		return nil
	} else if !os.IsExist(err) {
		return fmt.Errorf("acquiring lock %s: %w", l.path, err)
	}

	if !l.isStale() {
		return ErrLocked
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale lock %s: %w", l.path, err)
	}
	if err := l.acquire(); err != nil {
		if os.IsExist(err) {
			return ErrLocked
		}
		return fmt.Errorf("acquiring lock %s: %w", l.path, err)
	}
	return nil
}

// Unlock releases the lock. Releasing an unheld lock is a no-op.
func (l *FileLock) Unlock() error {
	if !l.held {
		return nil
	}
	l.held = false
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("releasing lock %s: %w", l.path, err)
	}
	return nil
}

func (l *FileLock) acquire() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	info := lockInfo{PID: os.Getpid(), AcquiredAt: time.Now().UTC()}
	if err := json.NewEncoder(f).Encode(info); err != nil {
		_ = os.Remove(l.path)
		return err
	}
	l.held = true
	return nil
}

// isStale reports whether the current lock file belongs to a dead
// process or exceeded the TTL. Unreadable lock files count as stale.
func (l *FileLock) isStale() bool {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return true
	}
	var info lockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return true
	}
	if time.Since(info.AcquiredAt) > staleAfter {
		return true
	}
	return !pidAlive(info.PID)
}

// pidAlive probes a PID with signal 0.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
