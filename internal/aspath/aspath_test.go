package aspath

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAnnotate_Tier1Present(t *testing.T) {
	tracer := func(ctx context.Context, link string, gw net.IP, timeout time.Duration) ([]uint32, error) {
		return []uint32{65000, 174, 64500}, nil
	}
	a := Annotate(context.Background(), slog.New(slog.DiscardHandler), tracer, "eth0", net.ParseIP("1.1.1.1"), time.Second)
	require.NotNil(t, a)
	require.True(t, a.Tier1Present)
	require.Equal(t, 3, a.HopCount)
}

func TestAnnotate_NoTier1(t *testing.T) {
	tracer := func(ctx context.Context, link string, gw net.IP, timeout time.Duration) ([]uint32, error) {
		hops := make([]uint32, 9)
		for i := range hops {
			hops[i] = uint32(65000 + i)
		}
		return hops, nil
	}
	a := Annotate(context.Background(), slog.New(slog.DiscardHandler), tracer, "wlan0", net.ParseIP("1.1.1.1"), time.Second)
	require.NotNil(t, a)
	require.False(t, a.Tier1Present)
	require.Equal(t, 9, a.HopCount)
}

func TestAnnotate_TracerFailureYieldsNilNotError(t *testing.T) {
	tracer := func(ctx context.Context, link string, gw net.IP, timeout time.Duration) ([]uint32, error) {
		return nil, context.DeadlineExceeded
	}
	a := Annotate(context.Background(), slog.New(slog.DiscardHandler), tracer, "eth0", net.ParseIP("1.1.1.1"), time.Second)
	require.Nil(t, a)
}

func TestParseASPath_DedupesConsecutiveOnly(t *testing.T) {
	report := "Host: AS174 1.1.1.1\n  2. AS174 9.9.9.9\n  3. AS701 8.8.8.8\n  4. AS174 1.1.1.2\n"
	got := parseASPath(report)
	require.Equal(t, []uint32{174, 701, 174}, got)
}
