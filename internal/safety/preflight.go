package safety

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"netopt/internal/inventory"
)

// PreflightDeps are the checks Preflight runs, each injected so callers can
// stub them in tests without touching the kernel.
type PreflightDeps struct {
	Links           []inventory.Link
	PingGateway     func(ctx context.Context, timeout time.Duration) error
	RequiredTools   []string
	LookPath        func(string) (string, error)
	ConfigParseable func() error
}

// Preflight runs every spec §4.8 pre-flight check and returns an error for
// the first failure: wrapping ErrMissingTool for a missing required tool,
// ErrPreflight for every other check. No mutation happens before or during this
// check: it's purely advisory gatekeeping for the transaction that follows.
func Preflight(ctx context.Context, deps PreflightDeps) error {
	if countAdminUp(deps.Links) == 0 {
		return fmt.Errorf("%w: no admin-up links", ErrPreflight)
	}

	if deps.PingGateway != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := deps.PingGateway(pingCtx, 2*time.Second); err != nil {
			return fmt.Errorf("%w: default gateway unreachable: %v", ErrPreflight, err)
		}
	}

	lookPath := deps.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	for _, tool := range deps.RequiredTools {
		if _, err := lookPath(tool); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrMissingTool, tool, err)
		}
	}

	if deps.ConfigParseable != nil {
		if err := deps.ConfigParseable(); err != nil {
			return fmt.Errorf("%w: configuration unparseable: %v", ErrPreflight, err)
		}
	}

	return nil
}

func countAdminUp(links []inventory.Link) int {
	n := 0
	for _, l := range links {
		if l.AdminUp {
			n++
		}
	}
	return n
}
