//go:build linux

package inventory

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	nl "github.com/vishvananda/netlink"
)

// linuxInventory enumerates links and gateways via the kernel's netlink
// socket, following the pattern in the teacher's internal/netlink package:
// a thin struct wrapping vishvananda/netlink calls, with sysfs reads for the
// attributes netlink itself doesn't expose (wireless presence, link speed).
type linuxInventory struct {
	log     *slog.Logger
	sysRoot string // /sys/class/net, overridable in tests
	exclude *regexp.Regexp
}

// New returns the Linux Inventory implementation. exclude is the compiled
// EXCLUDE_INTERFACES pattern (config.Config.ExcludeInterfacesPattern) and
// may be nil, in which case only the built-in excludePattern applies.
func New(log *slog.Logger, exclude *regexp.Regexp) Inventory {
	return &linuxInventory{log: log, sysRoot: "/sys/class/net", exclude: exclude}
}

func (inv *linuxInventory) List() ([]Link, error) {
	nlLinks, err := nl.LinkList()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInventory, err)
	}

	links := make([]Link, 0, len(nlLinks))
	for _, l := range nlLinks {
		attrs := l.Attrs()
		name := attrs.Name
		if IsExcludedByPattern(name, inv.exclude) {
			continue
		}
		adminUp := attrs.Flags&net.FlagUp != 0
		if !adminUp {
			continue
		}

		sysfsType, err := inv.readType(name)
		if err != nil {
			inv.log.Warn("inventory: missing sysfs type node, classifying by name only", "link", name, "error", err)
			sysfsType = -1
		}
		hasWireless := inv.hasWirelessNode(name)

		links = append(links, Link{
			Name:      name,
			Class:     classify(name, sysfsType, hasWireless),
			AdminUp:   adminUp,
			Carrier:   attrs.OperState == nl.OperUp,
			MAC:       attrs.HardwareAddr,
			MTU:       attrs.MTU,
			SpeedMbps: inv.readSpeed(name),
		})
	}
	return links, nil
}

func (inv *linuxInventory) Gateway(link Link) (net.IP, error) {
	nlLink, err := nl.LinkByName(link.Name)
	if err != nil {
		return nil, fmt.Errorf("inventory: link %s: %w", link.Name, err)
	}

	routes, err := nl.RouteList(nlLink, nl.FAMILY_V4)
	if err != nil {
		return nil, fmt.Errorf("inventory: routes for %s: %w", link.Name, err)
	}

	for _, r := range routes {
		if r.Dst != nil {
			continue // only the default route carries a usable gateway here
		}
		if r.Gw != nil {
			return r.Gw, nil
		}
	}
	return nil, nil // no default route on this link; caller excludes it
}

func (inv *linuxInventory) readType(name string) (int, error) {
	data, err := os.ReadFile(filepath.Join(inv.sysRoot, name, "type"))
	if err != nil {
		return 0, err
	}
	t, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, err
	}
	return t, nil
}

func (inv *linuxInventory) hasWirelessNode(name string) bool {
	base := filepath.Join(inv.sysRoot, name)
	for _, sub := range []string{"wireless", "phy80211"} {
		if _, err := os.Stat(filepath.Join(base, sub)); err == nil {
			return true
		}
	}
	return false
}

// readSpeed reads /sys/class/net/<n>/speed, which is -1 or absent on links
// without negotiated speed (wifi, down links); nil is returned in that case
// rather than treating it as an error, per the nullable Link.SpeedMbps field.
func (inv *linuxInventory) readSpeed(name string) *int {
	data, err := os.ReadFile(filepath.Join(inv.sysRoot, name, "speed"))
	if err != nil {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || v < 0 {
		return nil
	}
	return &v
}
