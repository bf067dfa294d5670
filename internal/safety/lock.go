package safety

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Lock is the PID-bearing exclusive-create transaction lock (spec §5): a
// second concurrent apply on the same host fails acquisition, and a stale
// lock (owning PID no longer exists) is reclaimed atomically.
type Lock struct {
	path string
}

// NewLock returns a Lock at path (typically <state_root>/netopt.lock).
func NewLock(path string) *Lock {
	return &Lock{path: path}
}

// Acquire creates the lock file exclusively, writing the current PID.
// If the file already exists and names a still-running PID, it returns
// ErrLocked. If it names a PID that no longer exists, the stale lock is
// removed and acquisition retried once.
func (l *Lock) Acquire() error {
	ok, err := l.tryCreate()
	if err == nil && ok {
		return nil
	}
	if err != nil && !os.IsExist(err) {
		return fmt.Errorf("safety: acquiring lock: %w", err)
	}

	stale, err := l.isStale()
	if err != nil {
		return fmt.Errorf("safety: checking lock staleness: %w", err)
	}
	if !stale {
		return ErrLocked
	}

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("safety: reclaiming stale lock: %w", err)
	}
	ok, err = l.tryCreate()
	if err != nil {
		if os.IsExist(err) {
			return ErrLocked // lost the reclaim race to another instance
		}
		return fmt.Errorf("safety: acquiring lock after reclaim: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

func (l *Lock) tryCreate() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return false, err
	}
	defer f.Close()
	_, err = f.WriteString(strconv.Itoa(os.Getpid()))
	return err == nil, err
}

func (l *Lock) isStale() (bool, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return true, nil // unreadable content, treat as stale
	}
	return !processAlive(pid), nil
}

// Release removes the lock file. Called only by the owning process at
// transaction resolution.
func (l *Lock) Release() error {
	err := os.Remove(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

