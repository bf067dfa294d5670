// Package inventory enumerates Linux network interfaces and their default
// gateways (spec C2). Classification and exclusion are pure functions so
// they're testable without a kernel; the actual sysfs/netlink reads live in
// the platform-specific files.
package inventory

import (
	"errors"
	"net"
	"regexp"
)

// ErrInventory is surfaced when enumeration fails catastrophically (not for
// per-link sysfs misses, which are logged and classified unknown instead).
var ErrInventory = errors.New("inventory: enumeration failed")

// ErrUnsupportedPlatform is returned by the non-Linux build of Inventory.
var ErrUnsupportedPlatform = errors.New("inventory: unsupported platform")

// LinkClass is the coarse category a link is bucketed into for weighting
// (spec C5 class multiplier) and for tie-breaking plan order.
type LinkClass int

const (
	ClassUnknown LinkClass = iota
	ClassEthernet
	ClassWifi
	ClassMobile
)

func (c LinkClass) String() string {
	switch c {
	case ClassEthernet:
		return "ethernet"
	case ClassWifi:
		return "wifi"
	case ClassMobile:
		return "mobile"
	default:
		return "unknown"
	}
}

// Link describes one kernel network interface, immutable for the duration
// of a single apply invocation.
type Link struct {
	Name      string
	Class     LinkClass
	AdminUp   bool
	Carrier   bool
	MAC       net.HardwareAddr
	MTU       int
	SpeedMbps *int // nil when unknown or link is down
}

// Inventory enumerates links and resolves each one's default gateway.
type Inventory interface {
	List() ([]Link, error)
	Gateway(link Link) (net.IP, error)
}

// excludePattern matches virtual/loopback interfaces that never participate
// in multipath planning, checked before classification.
var excludePattern = regexp.MustCompile(`^lo$|^docker|^veth|^br-|^virbr`)

// IsExcluded reports whether name should be dropped from the inventory
// before classification is even attempted.
func IsExcluded(name string) bool {
	return excludePattern.MatchString(name)
}

// IsExcludedByPattern reports whether name matches the built-in
// excludePattern or the caller-supplied extra pattern (the compiled form of
// the configurable EXCLUDE_INTERFACES key). extra may be nil, in which case
// this is equivalent to IsExcluded.
func IsExcludedByPattern(name string, extra *regexp.Regexp) bool {
	if IsExcluded(name) {
		return true
	}
	return extra != nil && extra.MatchString(name)
}

// sysfsType mirrors the handful of ARPHRD_* / sysfs "type" values this
// package cares about. 1 is ARPHRD_ETHER.
const sysfsTypeEther = 1

var (
	wifiNamePattern   = regexp.MustCompile(`^(wl|wlan)`)
	mobileNamePattern = regexp.MustCompile(`^(ppp|wwan|wwp|usb)`)
	ethNamePattern    = regexp.MustCompile(`^(en|eth)`)
)

// classify implements the order-matters classification policy from spec
// §4.2. hasWireless reflects whether /sys/class/net/<n>/wireless or
// phy80211 exists; sysfsType is the numeric "type" file content, or -1 if
// the sysfs node was missing (never fails enumeration: such a link is
// classified by the wifi/mobile name rules, or unknown if none match).
func classify(name string, sysfsType int, hasWireless bool) LinkClass {
	switch {
	case hasWireless:
		return ClassWifi
	case wifiNamePattern.MatchString(name):
		return ClassWifi
	case mobileNamePattern.MatchString(name):
		return ClassMobile
	case ethNamePattern.MatchString(name) && sysfsType == sysfsTypeEther:
		return ClassEthernet
	case sysfsType == sysfsTypeEther:
		return ClassEthernet
	default:
		return ClassUnknown
	}
}
