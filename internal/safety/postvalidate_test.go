package safety

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"netopt/internal/inventory"
	"netopt/internal/planner"
	"netopt/internal/probe"
)

func testPlan() planner.Plan {
	return planner.Plan{{
		Link:    inventory.Link{Name: "eth0"},
		Gateway: net.ParseIP("192.168.1.1"),
		Weight:  20,
		Probe:   probe.Probe{Link: "eth0", LatencyMS: 5, LatencyValid: true},
	}}
}

func TestPostValidate_AllPass(t *testing.T) {
	deps := PostValidateDeps{
		CheckInstalledRoute: func(planner.Plan) error { return nil },
		PingGateway:         func(ctx context.Context, gw net.IP) error { return nil },
		PingCanary:          func(ctx context.Context, canary string) error { return nil },
		ResolveDNS:          func(ctx context.Context, name string) error { return nil },
		CanaryDNSName:       "example.com",
	}
	warnings, err := PostValidate(context.Background(), testPlan(), deps)
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestPostValidate_RouteMismatchIsFatal(t *testing.T) {
	deps := PostValidateDeps{
		CheckInstalledRoute: func(planner.Plan) error { return errors.New("mismatch") },
	}
	_, err := PostValidate(context.Background(), testPlan(), deps)
	require.ErrorIs(t, err, ErrPostValidate)
}

func TestPostValidate_DNSFailureIsWarningNotFatal(t *testing.T) {
	deps := PostValidateDeps{
		CheckInstalledRoute: func(planner.Plan) error { return nil },
		PingGateway:         func(ctx context.Context, gw net.IP) error { return nil },
		PingCanary:          func(ctx context.Context, canary string) error { return nil },
		ResolveDNS:          func(ctx context.Context, name string) error { return errors.New("nxdomain") },
		CanaryDNSName:       "example.com",
	}
	warnings, err := PostValidate(context.Background(), testPlan(), deps)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
}

func TestPostValidate_DNSSkippedWhenConfigSkipped(t *testing.T) {
	called := false
	deps := PostValidateDeps{
		CheckInstalledRoute: func(planner.Plan) error { return nil },
		PingGateway:         func(ctx context.Context, gw net.IP) error { return nil },
		PingCanary:          func(ctx context.Context, canary string) error { return nil },
		ResolveDNS:          func(ctx context.Context, name string) error { called = true; return nil },
		DNSConfigSkipped:    true,
	}
	_, err := PostValidate(context.Background(), testPlan(), deps)
	require.NoError(t, err)
	require.False(t, called)
}
