package probe

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestEngineProbe_Alive(t *testing.T) {
	fc := clockwork.NewFakeClock()
	calls := 0
	ping := func(ctx context.Context, link string, gw net.IP, count int, interval, timeout time.Duration) ([]time.Duration, error) {
		calls++
		rtts := make([]time.Duration, count)
		for i := range rtts {
			rtts[i] = 10 * time.Millisecond
		}
		return rtts, nil
	}

	e, err := New(Config{Logger: discardLogger(), Clock: fc, Ping: ping, CacheTTL: time.Minute})
	require.NoError(t, err)
	defer e.Close()

	p, err := e.Probe(context.Background(), "eth0", net.ParseIP("192.168.1.1"), DefaultOptions())
	require.NoError(t, err)
	require.False(t, p.Dead())
	require.InDelta(t, 10.0, p.LatencyMS, 0.001)
	require.Equal(t, 0.0, p.LossPct)
	require.Equal(t, SourceFresh, p.Source)
	require.Equal(t, 2, calls) // liveness gate + full sample

	cached, err := e.Probe(context.Background(), "eth0", net.ParseIP("192.168.1.1"), DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, SourceCached, cached.Source)
	require.Equal(t, 2, calls) // no additional pings issued
}

func TestEngineProbe_Dead(t *testing.T) {
	fc := clockwork.NewFakeClock()
	ping := func(ctx context.Context, link string, gw net.IP, count int, interval, timeout time.Duration) ([]time.Duration, error) {
		return nil, nil // no replies at all
	}
	e, err := New(Config{Logger: discardLogger(), Clock: fc, Ping: ping})
	require.NoError(t, err)
	defer e.Close()

	p, err := e.Probe(context.Background(), "wlan0", net.ParseIP("192.168.1.1"), DefaultOptions())
	require.NoError(t, err)
	require.True(t, p.Dead())
	require.Equal(t, 100.0, p.LossPct)
}

func TestEngineProbe_PartialLossComputesJitter(t *testing.T) {
	fc := clockwork.NewFakeClock()
	seq := [][]time.Duration{
		{5 * time.Millisecond}, // liveness gate: one reply
		{10 * time.Millisecond, 20 * time.Millisecond}, // sample: 2 of 3 configured
	}
	call := 0
	ping := func(ctx context.Context, link string, gw net.IP, count int, interval, timeout time.Duration) ([]time.Duration, error) {
		out := seq[call]
		call++
		return out, nil
	}
	e, err := New(Config{Logger: discardLogger(), Clock: fc, Ping: ping})
	require.NoError(t, err)
	defer e.Close()

	opts := DefaultOptions()
	opts.PingCount = 3
	p, err := e.Probe(context.Background(), "eth0", net.ParseIP("10.0.0.1"), opts)
	require.NoError(t, err)
	require.False(t, p.Dead())
	require.InDelta(t, 100.0/3, p.LossPct, 0.001) // 1 of 3 echoes unanswered
	require.InDelta(t, 15.0, p.LatencyMS, 0.001)
	require.NotNil(t, p.JitterMS)
	require.InDelta(t, 5.0, *p.JitterMS, 0.001) // population stddev of {10,20}
}

func TestMeanAndStdDev(t *testing.T) {
	samples := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}
	require.InDelta(t, 20.0, mean(samples), 0.001)
	require.InDelta(t, 8.16496581, populationStdDevMS(samples), 1e-5)
}

func TestProbeBatch_ReturnsEntryPerPair(t *testing.T) {
	fc := clockwork.NewFakeClock()
	ping := func(ctx context.Context, link string, gw net.IP, count int, interval, timeout time.Duration) ([]time.Duration, error) {
		return make([]time.Duration, count), nil
	}
	e, err := New(Config{Logger: discardLogger(), Clock: fc, Ping: ping})
	require.NoError(t, err)
	defer e.Close()

	pairs := []Pair{
		{Link: "eth0", Gateway: net.ParseIP("10.0.0.1")},
		{Link: "wlan0", Gateway: net.ParseIP("10.0.0.1")},
	}
	opts := DefaultOptions()
	opts.MaxConcurrency = 2
	results := e.ProbeBatch(context.Background(), pairs, opts)
	require.Len(t, results, 2)
	require.Contains(t, results, "eth0")
	require.Contains(t, results, "wlan0")
}
