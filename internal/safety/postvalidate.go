package safety

import (
	"context"
	"fmt"
	"net"
	"time"

	"netopt/internal/planner"
)

// PostValidateDeps wires the checks PostValidate runs after a successful
// apply, before the watchdog's confirmation window opens (spec §4.8).
type PostValidateDeps struct {
	CheckInstalledRoute func(plan planner.Plan) error
	PingGateway         func(ctx context.Context, gw net.IP) error
	PingCanary          func(ctx context.Context, canary string) error
	ResolveDNS          func(ctx context.Context, name string) error
	CanaryIP            string // default 1.1.1.1
	CanaryDNSName       string
	DNSConfigSkipped    bool
}

// PostValidate runs steps 1–4. Failure of 1–3 returns ErrPostValidate,
// which the caller treats as "auto-rollback, no confirmation window".
// Failure of step 4 (DNS) is returned as a warning string with a nil
// error — never fatal, and skipped entirely when DNS configuration itself
// was skipped.
func PostValidate(ctx context.Context, plan planner.Plan, deps PostValidateDeps) (warnings []string, err error) {
	if deps.CheckInstalledRoute != nil {
		if err := deps.CheckInstalledRoute(plan); err != nil {
			return nil, fmt.Errorf("%w: installed route mismatch: %v", ErrPostValidate, err)
		}
	}

	if len(plan) == 0 {
		return nil, fmt.Errorf("%w: empty plan, nothing to validate", ErrPostValidate)
	}

	if deps.PingGateway != nil {
		gwCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := deps.PingGateway(gwCtx, plan[0].Gateway)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: first gateway unreachable: %v", ErrPostValidate, err)
		}
	}

	if deps.PingCanary != nil {
		canary := deps.CanaryIP
		if canary == "" {
			canary = "1.1.1.1"
		}
		canaryCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := deps.PingCanary(canaryCtx, canary)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: external canary unreachable: %v", ErrPostValidate, err)
		}
	}

	if !deps.DNSConfigSkipped && deps.ResolveDNS != nil {
		dnsCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := deps.ResolveDNS(dnsCtx, deps.CanaryDNSName)
		cancel()
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("dns resolution of %s failed: %v", deps.CanaryDNSName, err))
		}
	}

	return warnings, nil
}
