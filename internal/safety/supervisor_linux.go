//go:build linux

package safety

import (
	"context"
	"fmt"
	"os"
	"time"

	"netopt/internal/clock"
)

// WriteRollbackScript renders the out-of-band rollback script to path with
// owner-only permissions. binPath is the netopt binary to invoke; it must
// support the hidden `watchdog expire-internal --state-root <dir>` verb
// this script calls, which performs the same rollback Watchdog.fire does,
// independently of this process still being alive (spec §4.8: "a
// supervising timer still fires the rollback").
func WriteRollbackScript(path, binPath, stateRoot string) error {
	script := fmt.Sprintf("#!/bin/sh\nexec %s watchdog expire-internal --state-root %s\n", binPath, stateRoot)
	return os.WriteFile(path, []byte(script), 0o700)
}

// ScheduleSupervisor arms an out-of-band systemd transient timer that runs
// scriptPath after timeout if nothing cancels it first — the backstop for
// when the main netopt process itself dies before the in-process watchdog
// timer would have fired.
func ScheduleSupervisor(ctx context.Context, unitName, scriptPath string, timeout time.Duration) error {
	res, err := clock.Run(ctx, 5*time.Second,
		"systemd-run",
		"--unit="+unitName,
		fmt.Sprintf("--on-active=%d", int(timeout.Seconds())),
		"--",
		"/bin/sh", scriptPath,
	)
	if err != nil {
		return fmt.Errorf("safety: scheduling supervisor timer: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("safety: systemd-run exited %d: %s", res.ExitCode, res.Stderr)
	}
	return nil
}

// CancelSupervisor tears down the transient unit, used by the CLI's
// `watchdog confirm` and `watchdog extend` verbs so a confirmed or
// rescheduled window doesn't leave a stray timer armed. `watchdog cancel`
// does not call it; the timer it leaves finds no pending rollback when it
// fires.
func CancelSupervisor(ctx context.Context, unitName string) error {
	_, err := clock.Run(ctx, 5*time.Second, "systemctl", "stop", unitName)
	return err
}
