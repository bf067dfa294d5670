package safety

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	ErrWatchdogNotArmed   = errors.New("safety: watchdog is not armed")
	ErrWatchdogExtendCap  = errors.New("safety: extend would exceed MAX_WATCHDOG_EXTEND")
	ErrWatchdogAlreadySet = errors.New("safety: watchdog already armed")
)

type watchdogState int

const (
	watchdogDisarmed watchdogState = iota
	watchdogArmed
	watchdogConfirmed
	watchdogCancelled
	watchdogExpired
)

// Watchdog protects a remote operator from lockout: once armed, a timer
// fires rollback unless confirm() or cancel() resolves it first. The
// in-process timer is the fast path; ScheduleSupervisor
// (supervisor_linux.go) backs it with an out-of-band systemd timer so a
// crash of this process still rolls back.
type Watchdog struct {
	clock     clockwork.Clock
	timeout   time.Duration
	maxExtend time.Duration
	rollback  func() error
	onExpire  func(error)

	mu        sync.Mutex
	state     watchdogState
	armedAt   time.Time
	totalWait time.Duration
	timer     clockwork.Timer
}

// NewWatchdog builds a Watchdog. rollback is invoked, synchronously,
// exactly once, on expiry or cancel. onExpire (optional) is called after
// an expiry-triggered rollback completes, for event emission.
func NewWatchdog(clock clockwork.Clock, timeout, maxExtend time.Duration, rollback func() error, onExpire func(error)) *Watchdog {
	return &Watchdog{clock: clock, timeout: timeout, maxExtend: maxExtend, rollback: rollback, onExpire: onExpire}
}

// Arm starts the confirmation window. Must be called at most once per
// transaction.
func (w *Watchdog) Arm() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != watchdogDisarmed {
		return ErrWatchdogAlreadySet
	}
	w.state = watchdogArmed
	w.armedAt = w.clock.Now()
	w.totalWait = w.timeout
	w.timer = w.clock.AfterFunc(w.timeout, w.fire)
	return nil
}

// fire runs on the timer goroutine when the window lapses unconfirmed.
func (w *Watchdog) fire() {
	w.mu.Lock()
	if w.state != watchdogArmed {
		w.mu.Unlock()
		return
	}
	w.state = watchdogExpired
	w.mu.Unlock()

	err := w.rollback()
	if w.onExpire != nil {
		w.onExpire(err)
	}
}

// Confirm disarms the watchdog, committing the change.
func (w *Watchdog) Confirm() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != watchdogArmed {
		return ErrWatchdogNotArmed
	}
	w.timer.Stop()
	w.state = watchdogConfirmed
	return nil
}

// Cancel disarms the watchdog and rolls back immediately, as if the
// operator explicitly rejected the change.
func (w *Watchdog) Cancel() error {
	w.mu.Lock()
	if w.state != watchdogArmed {
		w.mu.Unlock()
		return ErrWatchdogNotArmed
	}
	w.timer.Stop()
	w.state = watchdogCancelled
	w.mu.Unlock()

	return w.rollback()
}

// Extend adds d to the confirmation window, bounded so the total elapsed
// armed time never exceeds MAX_WATCHDOG_EXTEND.
func (w *Watchdog) Extend(d time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != watchdogArmed {
		return ErrWatchdogNotArmed
	}
	if w.totalWait+d > w.maxExtend {
		return fmt.Errorf("%w: requested total %s exceeds cap %s", ErrWatchdogExtendCap, w.totalWait+d, w.maxExtend)
	}
	w.timer.Stop()
	w.totalWait += d
	remaining := w.totalWait - w.clock.Now().Sub(w.armedAt)
	if remaining < 0 {
		remaining = 0
	}
	w.timer = w.clock.AfterFunc(remaining, w.fire)
	return nil
}

// State reports the watchdog's current state, for status reporting.
func (w *Watchdog) State() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case watchdogDisarmed:
		return "disarmed"
	case watchdogArmed:
		return "armed"
	case watchdogConfirmed:
		return "confirmed"
	case watchdogCancelled:
		return "cancelled"
	case watchdogExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ConservativeRollbackProfile is the sysctl profile the expiry rollback
// re-applies (spec §4.8): cubic congestion control, pfifo_fast qdisc
// default — the most broadly compatible, conservative baseline.
var ConservativeRollbackProfile = map[string]string{
	"net.ipv4.tcp_congestion_control": "cubic",
	"net.core.default_qdisc":          "pfifo_fast",
}
