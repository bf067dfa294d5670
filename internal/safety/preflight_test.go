package safety

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"netopt/internal/inventory"
)

func TestPreflight_NoAdminUpLinks(t *testing.T) {
	err := Preflight(context.Background(), PreflightDeps{Links: nil})
	require.ErrorIs(t, err, ErrPreflight)
}

func TestPreflight_GatewayUnreachable(t *testing.T) {
	deps := PreflightDeps{
		Links:       []inventory.Link{{Name: "eth0", AdminUp: true}},
		PingGateway: func(ctx context.Context, timeout time.Duration) error { return errors.New("no reply") },
	}
	err := Preflight(context.Background(), deps)
	require.ErrorIs(t, err, ErrPreflight)
}

func TestPreflight_MissingTool(t *testing.T) {
	deps := PreflightDeps{
		Links:         []inventory.Link{{Name: "eth0", AdminUp: true}},
		RequiredTools: []string{"nonexistent-tool-xyz"},
		LookPath:      func(string) (string, error) { return "", errors.New("not found") },
	}
	err := Preflight(context.Background(), deps)
	require.ErrorIs(t, err, ErrMissingTool)
}

func TestPreflight_AllPass(t *testing.T) {
	deps := PreflightDeps{
		Links:           []inventory.Link{{Name: "eth0", AdminUp: true}},
		PingGateway:     func(ctx context.Context, timeout time.Duration) error { return nil },
		RequiredTools:   []string{"ip"},
		LookPath:        func(string) (string, error) { return "/usr/sbin/ip", nil },
		ConfigParseable: func() error { return nil },
	}
	require.NoError(t, Preflight(context.Background(), deps))
}
