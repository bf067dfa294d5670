//go:build !linux

package checkpoint

import (
	"context"
	"log/slog"
)

type unsupportedStore struct{}

// New returns a stub Store on non-Linux platforms; every method fails with
// ErrUnsupportedOS. Capture relies on Linux-only tools (tc, ethtool,
// /proc/net, /sys/module), matching the inventory and route packages'
// platform split.
func New(_ context.Context, _ *slog.Logger, _ string, _ int) Store {
	return unsupportedStore{}
}

func (unsupportedStore) Create(_, _ string) (string, error) { return "", ErrUnsupportedOS }
func (unsupportedStore) Restore(_ string) error              { return ErrUnsupportedOS }
func (unsupportedStore) List() ([]Metadata, error)           { return nil, ErrUnsupportedOS }
func (unsupportedStore) Delete(_ string) error                { return ErrUnsupportedOS }
func (unsupportedStore) Prune() error                         { return ErrUnsupportedOS }
