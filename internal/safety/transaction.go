package safety

import (
	"fmt"
	"sync"

	"netopt/internal/planner"
	"netopt/internal/route"
)

// Transaction ties together the pre-apply checkpoint, optional watchdog,
// proposed plan, and route backup into one resolve-exactly-once unit
// (spec §3 Transaction, §4.6 state machine).
type Transaction struct {
	mu sync.Mutex

	lock         *Lock
	state        State
	checkpointID string
	routeBackup  route.RouteBackup
	plan         planner.Plan
	watchdog     *Watchdog
}

// Begin acquires the transaction lock and transitions IDLE → OPEN. The
// caller is expected to have already captured the checkpoint and route
// backup; they're attached here for Rollback/status reporting.
func Begin(lock *Lock, checkpointID string, backup route.RouteBackup) (*Transaction, error) {
	if err := lock.Acquire(); err != nil {
		return nil, err
	}
	return &Transaction{lock: lock, state: StateOpen, checkpointID: checkpointID, routeBackup: backup}, nil
}

// MarkApplied transitions OPEN → APPLIED after a successful route install.
func (t *Transaction) MarkApplied(plan planner.Plan) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateOpen {
		return fmt.Errorf("%w: MarkApplied from %s", ErrBadTransition, t.state)
	}
	t.plan = plan
	t.state = StateApplied
	return nil
}

// MarkRolledBack transitions OPEN or APPLIED → ROLLED_BACK, releasing the
// lock since this is a terminal state.
func (t *Transaction) MarkRolledBack() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateOpen && t.state != StateApplied {
		return fmt.Errorf("%w: MarkRolledBack from %s", ErrBadTransition, t.state)
	}
	t.state = StateRolledBack
	return t.lock.Release()
}

// Commit transitions APPLIED → COMMITTED, releasing the lock.
func (t *Transaction) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateApplied {
		return fmt.Errorf("%w: Commit from %s", ErrBadTransition, t.state)
	}
	t.state = StateCommitted
	return t.lock.Release()
}

// MarkFatal transitions into FATAL from ROLLED_BACK when the rollback
// itself failed — terminal, operator intervention required. The lock is
// deliberately NOT released: a stuck, undefined system state should not
// invite a concurrent second attempt.
func (t *Transaction) MarkFatal() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateRolledBack {
		return fmt.Errorf("%w: MarkFatal from %s", ErrBadTransition, t.state)
	}
	t.state = StateFatal
	return nil
}

func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) CheckpointID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checkpointID
}

func (t *Transaction) RouteBackup() route.RouteBackup {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.routeBackup
}

func (t *Transaction) AttachWatchdog(w *Watchdog) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.watchdog = w
}

func (t *Transaction) Watchdog() *Watchdog {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.watchdog
}
