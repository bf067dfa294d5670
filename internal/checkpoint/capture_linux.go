//go:build linux

package checkpoint

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"netopt/internal/clock"
)

const captureTimeout = 10 * time.Second

// captureEntry is one file that ends up in the archive.
type captureEntry struct {
	name string
	data []byte
}

// runCapture runs a best-effort command and returns its stdout as an
// entry. Failures are logged and swallowed — ethtool/tc/firewall tooling
// varies by install, and a missing one shouldn't abort the whole snapshot.
func runCapture(ctx context.Context, log *slog.Logger, name string, args ...string) ([]byte, bool) {
	res, err := clock.Run(ctx, captureTimeout, name, args...)
	if err != nil || res.ExitCode != 0 {
		log.Debug("checkpoint: capture command unavailable or failed, skipping", "cmd", name, "args", args, "error", err)
		return nil, false
	}
	return []byte(res.Stdout), true
}

// captureAll gathers every text snapshot named in spec §4.7. Each capture
// is independent and best-effort; a missing tool just means that entry is
// absent from the archive, not a failed checkpoint.
func captureAll(ctx context.Context, log *slog.Logger) []captureEntry {
	var entries []captureEntry
	add := func(name string, data []byte, ok bool) {
		if ok {
			entries = append(entries, captureEntry{name: name, data: data})
		}
	}

	simple := []struct {
		file string
		cmd  string
		args []string
	}{
		{"addr.txt", "ip", []string{"addr", "show"}},
		{"route.txt", "ip", []string{"route", "show", "table", "all"}},
		{"link.txt", "ip", []string{"-d", "link", "show"}},
		{"tc_qdisc.txt", "tc", []string{"-s", "qdisc", "show"}},
		{"sysctl.txt", "sysctl", []string{"-a"}},
		{"lsmod.txt", "lsmod", nil},
		{"systemd_units.txt", "systemctl", []string{"list-units", "--type=service", "--no-pager"}},
	}
	for _, c := range simple {
		data, ok := runCapture(ctx, log, c.cmd, c.args...)
		add(c.file, data, ok)
	}

	if data, ok := runCapture(ctx, log, "iptables-save"); ok {
		add("firewall_iptables.txt", data, true)
	} else if data, ok := runCapture(ctx, log, "nft", "list", "ruleset"); ok {
		add("firewall_nft.txt", data, true)
	} else if data, ok := runCapture(ctx, log, "firewall-cmd", "--list-all"); ok {
		add("firewall_firewalld.txt", data, true)
	}

	for _, link := range listLinkNames(ctx, log) {
		if data, ok := runCapture(ctx, log, "ethtool", "-k", link); ok {
			add(fmt.Sprintf("ethtool_features_%s.txt", link), data, true)
		}
		if data, ok := runCapture(ctx, log, "ethtool", "-g", link); ok {
			add(fmt.Sprintf("ethtool_ring_%s.txt", link), data, true)
		}
		if data, ok := runCapture(ctx, log, "ethtool", "-c", link); ok {
			add(fmt.Sprintf("ethtool_coalesce_%s.txt", link), data, true)
		}
	}

	if data := captureModuleParameters(log); len(data) > 0 {
		entries = append(entries, captureEntry{name: "module_parameters.txt", data: data})
	}
	if data := captureProcNet(log); len(data) > 0 {
		entries = append(entries, captureEntry{name: "proc_net.txt", data: data})
	}

	return entries
}

// listLinkNames parses `ip -o link show` output for interface names,
// avoiding a netlink dependency in a package that otherwise only shells
// out — capture is read-only introspection, not state mutation.
func listLinkNames(ctx context.Context, log *slog.Logger) []string {
	data, ok := runCapture(ctx, log, "ip", "-o", "link", "show")
	if !ok {
		return nil
	}
	var names []string
	for _, line := range strings.Split(string(data), "\n") {
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 2 {
			continue
		}
		names = append(names, strings.TrimSpace(parts[1]))
	}
	return names
}

// captureModuleParameters walks /sys/module/*/parameters, concatenating
// each key=value pair it can read. Best-effort: permission-denied and
// binary-valued parameters are skipped silently.
func captureModuleParameters(log *slog.Logger) []byte {
	var buf bytes.Buffer
	modules, err := os.ReadDir("/sys/module")
	if err != nil {
		log.Debug("checkpoint: /sys/module unreadable, skipping module parameters", "error", err)
		return nil
	}
	for _, m := range modules {
		paramDir := filepath.Join("/sys/module", m.Name(), "parameters")
		params, err := os.ReadDir(paramDir)
		if err != nil {
			continue
		}
		for _, p := range params {
			v, err := os.ReadFile(filepath.Join(paramDir, p.Name()))
			if err != nil {
				continue
			}
			fmt.Fprintf(&buf, "%s/%s=%s", m.Name(), p.Name(), strings.TrimSpace(string(v)))
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}

// captureProcNet concatenates the small, universally-present /proc/net
// statistics files.
func captureProcNet(log *slog.Logger) []byte {
	var buf bytes.Buffer
	for _, name := range []string{"dev", "route", "tcp", "udp", "snmp"} {
		data, err := os.ReadFile(filepath.Join("/proc/net", name))
		if err != nil {
			continue
		}
		fmt.Fprintf(&buf, "=== %s ===\n", name)
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
