//go:build !linux

package inventory

import (
	"log/slog"
	"net"
	"regexp"
)

type unsupportedInventory struct{}

// New returns a stub Inventory on non-Linux platforms, so that planner and
// config code can be built and unit-tested on a dev laptop even though the
// real kernel interaction only exists on Linux.
func New(_ *slog.Logger, _ *regexp.Regexp) Inventory {
	return &unsupportedInventory{}
}

func (unsupportedInventory) List() ([]Link, error) {
	return nil, ErrUnsupportedPlatform
}

func (unsupportedInventory) Gateway(Link) (net.IP, error) {
	return nil, ErrUnsupportedPlatform
}
