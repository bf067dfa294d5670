package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/spf13/cobra"

	"netopt/internal/events"
	"netopt/internal/inventory"
	"netopt/internal/route"
	"netopt/internal/safety"
)

type watchdogCmd struct{ flags *rootFlags }

func newWatchdogCmd(flags *rootFlags) *watchdogCmd { return &watchdogCmd{flags: flags} }

func pendingRollbackPath(stateRoot string) string {
	return filepath.Join(stateRoot, "pending_rollback.json")
}

// persistPendingRollback writes the route backup runApply captured before
// arming the watchdog, so the out-of-band `expire-internal` verb (run by a
// systemd-run transient unit in a fresh process, per spec §4.8) has
// something to restore even if the original netopt process has died.
func persistPendingRollback(stateRoot string, backup route.RouteBackup) error {
	data, err := json.Marshal(backup)
	if err != nil {
		return err
	}
	return os.WriteFile(pendingRollbackPath(stateRoot), data, 0o600)
}

func readPendingRollback(stateRoot string) (route.RouteBackup, bool) {
	data, err := os.ReadFile(pendingRollbackPath(stateRoot))
	if err != nil {
		return route.RouteBackup{}, false
	}
	var backup route.RouteBackup
	if err := json.Unmarshal(data, &backup); err != nil {
		return route.RouteBackup{}, false
	}
	return backup, true
}

func clearPendingRollback(stateRoot string) {
	_ = os.Remove(pendingRollbackPath(stateRoot))
}

func (c *watchdogCmd) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "watchdog",
		Short: "Confirm, cancel, extend, or inspect the post-apply remote-lockout watchdog",
	}

	confirmCmd := &cobra.Command{
		Use:   "confirm",
		Short: "Confirm the current apply, cancelling the auto-rollback window",
		RunE: func(cmd *cobra.Command, args []string) error {
			sink := newLogger(c.flags)
			clearPendingRollback(c.flags.stateRoot)
			if err := safety.CancelSupervisor(cmd.Context(), "netopt-watchdog.timer"); err != nil {
				sink.Warn(events.KindWatchdog, "cancelling supervisor timer failed (it may not have been armed)", "error", err)
			}
			sink.Info(events.KindWatchdog, "apply confirmed, watchdog disarmed")
			fmt.Println("confirmed")
			return nil
		},
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the pending apply immediately, rolling back now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatchdogRollback(cmd, c.flags, "cancelled by operator")
		},
	}

	var extendSeconds int
	extendCmd := &cobra.Command{
		Use:   "extend",
		Short: "Push the confirmation deadline further out, up to the configured cap",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(c.flags)
			if err != nil {
				return err
			}
			sink := newLogger(c.flags)
			if err := safety.CancelSupervisor(cmd.Context(), "netopt-watchdog.timer"); err != nil {
				sink.Warn(events.KindWatchdog, "cancelling prior supervisor timer before extend", "error", err)
			}
			timeout := time.Duration(extendSeconds) * time.Second
			if timeout <= 0 {
				timeout = time.Duration(cfg.WatchdogTimeout) * time.Second
			}
			if maxExtend := time.Duration(cfg.MaxWatchdogExtend) * time.Second; maxExtend > 0 && timeout > maxExtend {
				timeout = maxExtend
			}
			scriptPath := filepath.Join(c.flags.stateRoot, "rollback.sh")
			binPath, err := os.Executable()
			if err != nil {
				return err
			}
			if err := safety.WriteRollbackScript(scriptPath, binPath, c.flags.stateRoot); err != nil {
				return err
			}
			if err := safety.ScheduleSupervisor(cmd.Context(), "netopt-watchdog.timer", scriptPath, timeout); err != nil {
				return err
			}
			sink.Info(events.KindWatchdog, "extended confirmation window", "timeout_s", int(timeout.Seconds()))
			fmt.Println("extended")
			return nil
		},
	}
	extendCmd.Flags().IntVar(&extendSeconds, "seconds", 0, "new timeout in seconds (defaults to WATCHDOG_TIMEOUT, capped at MAX_WATCHDOG_EXTEND)")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether a watchdog rollback is currently pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := readPendingRollback(c.flags.stateRoot); ok {
				fmt.Println("pending: an unconfirmed apply is awaiting confirmation or rollback")
			} else {
				fmt.Println("idle: no pending watchdog rollback")
			}
			return nil
		},
	}

	// expire-internal is the hidden verb the out-of-band systemd-run
	// transient timer invokes (see safety.WriteRollbackScript). It must
	// work in a brand-new process with no in-memory Transaction: it
	// restores routes from the backup runApply persisted to disk and
	// reapplies the conservative sysctl rollback profile, then clears the
	// pending marker so a later confirm/cancel is a no-op.
	expireCmd := &cobra.Command{
		Use:    "expire-internal",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatchdogRollback(cmd, c.flags, "watchdog supervisor timer fired")
		},
	}

	root.AddCommand(confirmCmd, cancelCmd, extendCmd, statusCmd, expireCmd)
	return root
}

func runWatchdogRollback(cmd *cobra.Command, flags *rootFlags, reason string) error {
	sink := newLogger(flags)
	log := sink.Logger()

	backup, ok := readPendingRollback(flags.stateRoot)
	if !ok {
		sink.Info(events.KindWatchdog, "no pending rollback found, nothing to do")
		fmt.Println("nothing pending")
		return nil
	}

	applicator := route.New(cmd.Context(), log)
	if _, err := applicator.TuneSysctl(safety.ConservativeRollbackProfile); err != nil {
		sink.Error(events.KindWatchdog, "reapplying conservative sysctl profile failed", "error", err)
	}
	if err := applicator.Restore(backup); err != nil {
		sink.Fatal(events.KindWatchdog, "rollback restore failed", "error", err, "reason", reason)
		return fmt.Errorf("%w: %v", safety.ErrWatchdogFired, err)
	}

	// spec §4.8 step (a): an expired watchdog rolls back every qdisc to
	// kernel defaults too, not just routes and sysctls, in case an applied
	// traffic-shaping policy outlived the route it was shaped for.
	var exclude *regexp.Regexp
	if cfg, cerr := loadConfig(flags); cerr == nil {
		exclude, _ = cfg.ExcludeInterfacesPattern()
	}
	inv := inventory.New(log, exclude)
	if links, lerr := inv.List(); lerr == nil {
		names := make([]string, len(links))
		for i, l := range links {
			names[i] = l.Name
		}
		if err := applicator.ResetQdiscs(names); err != nil {
			sink.Warn(events.KindWatchdog, "qdisc reset during rollback failed", "error", err)
		}
	} else {
		sink.Warn(events.KindWatchdog, "could not enumerate links for qdisc reset", "error", lerr)
	}

	clearPendingRollback(flags.stateRoot)
	if rec, ok := readTransactionRecord(flags.stateRoot); ok {
		persistTransactionFailure(flags.stateRoot, rec.CheckpointID, outcomeRolledBack, sink)
	}
	lock := safety.NewLock(filepath.Join(flags.stateRoot, "netopt.lock"))
	_ = lock.Release()

	sink.Error(events.KindWatchdog, "rolled back pending apply", "reason", reason)
	fmt.Println("rolled back:", reason)
	return nil
}
