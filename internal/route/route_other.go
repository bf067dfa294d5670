//go:build !linux

package route

import (
	"context"
	"log/slog"

	"netopt/internal/planner"
)

type unsupportedApplicator struct{}

// New returns a stub Applicator on non-Linux platforms; every method fails
// with ErrUnsupportedOS. Route management is inherently Linux-specific
// (netlink, `ip`, sysctl), matching the inventory package's platform split.
func New(_ context.Context, _ *slog.Logger) Applicator {
	return unsupportedApplicator{}
}

func (unsupportedApplicator) Backup() (RouteBackup, error) { return RouteBackup{}, ErrUnsupportedOS }
func (unsupportedApplicator) Apply(_ planner.Plan) error   { return ErrUnsupportedOS }
func (unsupportedApplicator) Restore(_ RouteBackup) error  { return ErrUnsupportedOS }
func (unsupportedApplicator) TuneSysctl(_ SysctlProfile) (SysctlBackup, error) {
	return nil, ErrUnsupportedOS
}
func (unsupportedApplicator) RestoreSysctl(_ SysctlBackup) error { return ErrUnsupportedOS }
func (unsupportedApplicator) ConfigureDNS(_ []string) (*DnsBackup, string, error) {
	return nil, "", ErrUnsupportedOS
}
func (unsupportedApplicator) ResetQdiscs(_ []string) error { return ErrUnsupportedOS }
