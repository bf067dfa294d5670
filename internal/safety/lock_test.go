package safety

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLockAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netopt.lock")
	l := NewLock(path)
	require.NoError(t, l.Acquire())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	require.NoError(t, l.Release())
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestLockAcquireFailsWhenHeldByLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netopt.lock")
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644))

	l := NewLock(path)
	err := l.Acquire()
	require.ErrorIs(t, err, ErrLocked)
}

func TestLockReclaimsStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netopt.lock")
	// PID 1 may be alive in a container; use an implausibly large PID instead.
	require.NoError(t, os.WriteFile(path, []byte("999999999"), 0o644))

	l := NewLock(path)
	require.NoError(t, l.Acquire())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}
