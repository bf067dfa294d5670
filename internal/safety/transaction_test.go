package safety

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"netopt/internal/route"
)

func newTestTransaction(t *testing.T) *Transaction {
	t.Helper()
	lock := NewLock(filepath.Join(t.TempDir(), "netopt.lock"))
	tx, err := Begin(lock, "chk_1", route.RouteBackup{Lines: []string{"default via 10.0.0.1 dev eth0"}})
	require.NoError(t, err)
	require.Equal(t, StateOpen, tx.State())
	return tx
}

func TestTransactionHappyPath(t *testing.T) {
	tx := newTestTransaction(t)
	require.NoError(t, tx.MarkApplied(nil))
	require.Equal(t, StateApplied, tx.State())
	require.NoError(t, tx.Commit())
	require.Equal(t, StateCommitted, tx.State())
	require.True(t, tx.State().Terminal())
}

func TestTransactionRollbackFromOpen(t *testing.T) {
	tx := newTestTransaction(t)
	require.NoError(t, tx.MarkRolledBack())
	require.Equal(t, StateRolledBack, tx.State())
}

func TestTransactionInvalidTransitionRejected(t *testing.T) {
	tx := newTestTransaction(t)
	err := tx.Commit() // can't commit from OPEN, only from APPLIED
	require.ErrorIs(t, err, ErrBadTransition)
}

func TestTransactionFatalAfterFailedRollback(t *testing.T) {
	tx := newTestTransaction(t)
	require.NoError(t, tx.MarkRolledBack())
	require.NoError(t, tx.MarkFatal())
	require.Equal(t, StateFatal, tx.State())
	require.True(t, tx.State().Terminal())
}

func TestBeginFailsWhenLockHeld(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "netopt.lock")
	lock := NewLock(lockPath)
	require.NoError(t, lock.Acquire())
	defer lock.Release()

	_, err := Begin(NewLock(lockPath), "chk_2", route.RouteBackup{})
	require.ErrorIs(t, err, ErrLocked)
}
