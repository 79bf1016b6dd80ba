package lock

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lockPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "scout.lock")
}

func TestFileLock_AcquireAndRelease(t *testing.T) {
	t.Parallel()

	l := New(lockPath(t))

	require.NoError(t, l.TryLock())
	require.NoError(t, l.Unlock())

	// Reacquirable after release.
	require.NoError(t, l.TryLock())
	require.NoError(t, l.Unlock())
}

func TestFileLock_ContentionFails(t *testing.T) {
	t.Parallel()

	path := lockPath(t)
	first := New(path)
	require.NoError(t, first.TryLock())
	defer func() { _ = first.Unlock() }()

	second := New(path)

	assert.ErrorIs(t, second.TryLock(), ErrLocked)
}

func TestFileLock_StaleLockIsReclaimed(t *testing.T) {
	t.Parallel()

	t.Run("DeadPID", func(t *testing.T) {
		t.Parallel()
		path := lockPath(t)
		// PID 1 is alive but not signalable by an unprivileged test
		// user in most environments; use an impossible PID instead.
		writeLockFile(t, path, 1<<30, time.Now())

		l := New(path)
		assert.NoError(t, l.TryLock())
		_ = l.Unlock()
	})

	t.Run("ExpiredTTL", func(t *testing.T) {
		t.Parallel()
		path := lockPath(t)
		writeLockFile(t, path, os.Getpid(), time.Now().Add(-time.Hour))

		l := New(path)
		assert.NoError(t, l.TryLock())
		_ = l.Unlock()
	})

	t.Run("GarbageContent", func(t *testing.T) {
		t.Parallel()
		path := lockPath(t)
		require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

		l := New(path)
		assert.NoError(t, l.TryLock())
		_ = l.Unlock()
	})
}

func TestFileLock_UnlockWithoutLockIsNoop(t *testing.T) {
	t.Parallel()

	l := New(lockPath(t))

	assert.NoError(t, l.Unlock())
}

func writeLockFile(t *testing.T, path string, pid int, acquiredAt time.Time) {
	t.Helper()
	data, err := json.Marshal(lockInfo{PID: pid, AcquiredAt: acquiredAt.UTC()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}
