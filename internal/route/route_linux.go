//go:build linux

package route

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	nl "github.com/vishvananda/netlink"

	"netopt/internal/clock"
	"netopt/internal/planner"
)

const cmdTimeout = 5 * time.Second

// linuxApplicator installs multipath default routes via netlink, following
// the teacher's internal/netlink pattern of a thin struct wrapping
// vishvananda/netlink calls, with `ip` exec fallbacks (through clock.Run)
// for the operations netlink has no structured API for: reading/restoring
// textual route backups, and sysctl/resolv.conf management.
type linuxApplicator struct {
	log *slog.Logger
	ctx context.Context
}

// New returns the Linux Applicator implementation. ctx bounds every
// netlink call and subprocess this Applicator issues.
func New(ctx context.Context, log *slog.Logger) Applicator {
	return &linuxApplicator{log: log, ctx: ctx}
}

func (a *linuxApplicator) Backup() (RouteBackup, error) {
	res, err := clock.Run(a.ctx, cmdTimeout, "ip", "-4", "route", "show", "default")
	if err != nil {
		return RouteBackup{}, fmt.Errorf("route: backup: %w", err)
	}
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(res.Stdout))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return RouteBackup{Lines: lines}, nil
}

// Apply installs plan as a single ECMP default route, replacing whatever
// default routes currently exist. It captures its own backup first and
// restores from it immediately if installation fails (spec §4.6) — this is
// independent of, and in addition to, any checkpoint the caller may hold.
func (a *linuxApplicator) Apply(plan planner.Plan) error {
	if len(plan) == 0 {
		return fmt.Errorf("%w: empty plan", ErrApplyFailed)
	}

	backup, err := a.Backup()
	if err != nil {
		return fmt.Errorf("%w: capturing pre-apply backup: %v", ErrApplyFailed, err)
	}

	if err := a.clearDefaultRoutes(); err != nil {
		return err
	}

	nexthops := make([]*nl.NexthopInfo, 0, len(plan))
	for _, entry := range plan {
		link, err := nl.LinkByName(entry.Link.Name)
		if err != nil {
			_ = a.Restore(backup)
			return fmt.Errorf("%w: resolving link %s: %v", ErrApplyFailed, entry.Link.Name, err)
		}
		weight := entry.Weight
		if weight < 1 {
			weight = 1
		}
		nexthops = append(nexthops, &nl.NexthopInfo{
			LinkIndex: link.Attrs().Index,
			Gw:        entry.Gateway,
			Hops:      weight - 1, // kernel "weight" is Hops+1
		})
	}

	route := &nl.Route{MultiPath: nexthops}
	if err := nl.RouteReplace(route); err != nil {
		a.log.Error("route: installing multipath default route failed, restoring backup", "error", err)
		if rerr := a.Restore(backup); rerr != nil {
			return fmt.Errorf("%w: install failed (%v) and restore also failed: %v", ErrApplyFailed, err, rerr)
		}
		return fmt.Errorf("%w: %v", ErrApplyFailed, err)
	}

	a.log.Info("route: applied multipath default route", "nexthops", len(nexthops))
	return nil
}

// clearDefaultRoutes removes every default route, retrying with a short
// bounded backoff until the routing table has none left — kernels can
// require more than one delete when several independent default routes
// coexist, and a route that fails to delete on the first pass (ESRCH racing
// a concurrent withdrawal) usually succeeds a few milliseconds later.
func (a *linuxApplicator) clearDefaultRoutes() error {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(maxClearIterations-1))
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		routes, err := nl.RouteList(nil, nl.FAMILY_V4)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: listing routes: %v", ErrCannotClear, err))
		}
		remaining := 0
		for _, r := range routes {
			if r.Dst != nil {
				continue
			}
			remaining++
			if err := nl.RouteDel(&r); err != nil && !os.IsNotExist(err) {
				a.log.Warn("route: deleting default route failed, will retry", "error", err, "attempt", attempt)
			}
		}
		if remaining == 0 {
			return nil
		}
		return fmt.Errorf("%w: %d default routes still present after attempt %d", ErrCannotClear, remaining, attempt)
	}, b)
}

// Restore clears the current default routes and replays backup, skipping
// (and logging) any line that fails validateRouteSpec rather than
// executing it — the corrupted-backup command-injection guard from spec §9.
func (a *linuxApplicator) Restore(backup RouteBackup) error {
	if err := a.clearDefaultRoutes(); err != nil {
		return err
	}

	installed := 0
	for _, line := range backup.Lines {
		tokens, ok := parseBackupLine(line)
		if !ok {
			a.log.Error("route: skipping backup entry that failed validation", "line", line)
			continue
		}
		args := append([]string{"route", "add"}, tokens...)
		res, err := clock.Run(a.ctx, cmdTimeout, "ip", args...)
		if err != nil || res.ExitCode != 0 {
			a.log.Error("route: restoring backup entry failed", "line", line, "error", err, "stderr", res.Stderr)
			continue
		}
		installed++
	}
	if installed == 0 && len(backup.Lines) > 0 {
		return ErrNoValidBackup
	}
	return nil
}

func (a *linuxApplicator) TuneSysctl(profile SysctlProfile) (SysctlBackup, error) {
	backup := make(SysctlBackup, len(profile))
	for key, value := range profile {
		res, err := clock.Run(a.ctx, cmdTimeout, "sysctl", "-n", key)
		if err != nil {
			return backup, fmt.Errorf("route: reading sysctl %s: %w", key, err)
		}
		backup[key] = strings.TrimSpace(res.Stdout)

		if _, err := clock.Run(a.ctx, cmdTimeout, "sysctl", "-w", fmt.Sprintf("%s=%s", key, value)); err != nil {
			return backup, fmt.Errorf("route: writing sysctl %s=%s: %w", key, value, err)
		}
	}
	return backup, nil
}

func (a *linuxApplicator) RestoreSysctl(backup SysctlBackup) error {
	for key, value := range backup {
		if _, err := clock.Run(a.ctx, cmdTimeout, "sysctl", "-w", fmt.Sprintf("%s=%s", key, value)); err != nil {
			return fmt.Errorf("route: restoring sysctl %s: %w", key, err)
		}
	}
	return nil
}

const resolvConf = "/etc/resolv.conf"

// ConfigureDNS overwrites /etc/resolv.conf with servers, unless the file is
// a symlink (systemd-resolved or NetworkManager owns it) or dnsmasq is
// running (it owns resolution itself), in which case it's a documented
// no-op: the skip reason is returned for the caller to log, not an error.
func (a *linuxApplicator) ConfigureDNS(servers []string) (*DnsBackup, string, error) {
	if fi, err := os.Lstat(resolvConf); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		return nil, "resolv.conf is a symlink, managed by the system resolver", nil
	}
	if res, err := clock.Run(a.ctx, cmdTimeout, "pgrep", "-x", "dnsmasq"); err == nil && res.ExitCode == 0 {
		return nil, "dnsmasq is active and owns resolution", nil
	}

	prev, err := os.ReadFile(resolvConf)
	if err != nil && !os.IsNotExist(err) {
		return nil, "", fmt.Errorf("route: reading %s: %w", resolvConf, err)
	}

	var b strings.Builder
	fmt.Fprintln(&b, "# managed by netopt")
	for _, s := range servers {
		fmt.Fprintf(&b, "nameserver %s\n", s)
	}

	tmp, err := os.CreateTemp("/etc", ".resolv.conf.netopt-*")
	if err != nil {
		return nil, "", fmt.Errorf("route: creating temp resolv.conf: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		return nil, "", fmt.Errorf("route: writing temp resolv.conf: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, "", fmt.Errorf("route: closing temp resolv.conf: %w", err)
	}
	if err := os.Rename(tmp.Name(), resolvConf); err != nil {
		return nil, "", fmt.Errorf("route: renaming into %s: %w", resolvConf, err)
	}

	return &DnsBackup{Previous: string(prev)}, "", nil
}

// ResetQdiscs tears down the root qdisc on every named interface, restoring
// kernel defaults rather than replaying a captured qdisc verbatim (tc
// syntax varies across kernel versions, so exact replay isn't attempted).
// A delete failure usually just means the interface was already on the
// default qdisc, so it's logged at Debug rather than returned.
func (a *linuxApplicator) ResetQdiscs(links []string) error {
	for _, link := range links {
		if _, err := clock.Run(a.ctx, cmdTimeout, "tc", "qdisc", "del", "dev", link, "root"); err != nil {
			a.log.Debug("route: qdisc reset skipped (likely already default)", "link", link, "error", err)
		}
	}
	return nil
}
