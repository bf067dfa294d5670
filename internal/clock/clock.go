// Package clock provides the single monotonic-time and subprocess-execution
// surface the rest of netopt is built on (spec C1). Every probe, route
// mutation, and checkpoint capture goes through Run so that deadlines,
// cancellation, and testing are handled in exactly one place.
package clock

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock wraps an injectable clockwork.Clock so tests can control time
// without touching the wall clock.
type Clock struct {
	clockwork.Clock
}

// New returns a Clock backed by the real system clock.
func New() *Clock {
	return &Clock{Clock: clockwork.NewRealClock()}
}

// NewFake returns a Clock backed by a clockwork.FakeClock, for tests.
func NewFake() (*Clock, clockwork.FakeClock) {
	fc := clockwork.NewFakeClock()
	return &Clock{Clock: fc}, fc
}

// Result carries the outcome of a single Run invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Run invokes name with args under deadline, never inheriting the parent's
// stdin. On deadline expiry the child's entire process group is killed so
// that tools which fork (ping, mtr) don't leak. Cancellation is cooperative:
// SIGTERM is sent first, then SIGKILL after a short grace period.
func Run(ctx context.Context, deadline time.Duration, name string, args ...string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	cmd := exec.Command(name, args...)
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("clock: starting %s: %w", name, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("clock: running %s: %w", name, err)
		}
		return res, nil

	case <-ctx.Done():
		killGroup(cmd, syscall.SIGTERM)
		grace := time.NewTimer(500 * time.Millisecond)
		defer grace.Stop()
		select {
		case <-done:
		case <-grace.C:
			killGroup(cmd, syscall.SIGKILL)
			<-done
		}
		return Result{Stdout: stdout.String(), Stderr: stderr.String(), TimedOut: true}, nil
	}
}

// killGroup signals the whole process group rooted at cmd's PID, swallowing
// errors from groups that have already exited.
func killGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, sig)
}
