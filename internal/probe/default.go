package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"netopt/internal/clock"

	probing "github.com/prometheus-community/pro-bing"
)

// DefaultPingFunc returns a PingFunc backed by prometheus-community/pro-bing,
// the same ICMP library the teacher's route-liveness prober uses
// (internal/probing/default.go). It sends count echoes spaced by interval,
// bound to link, and returns the RTT of every reply actually received.
func DefaultPingFunc(log *slog.Logger) PingFunc {
	return func(ctx context.Context, link string, gw net.IP, count int, interval, timeout time.Duration) ([]time.Duration, error) {
		pinger, err := probing.NewPinger(gw.String())
		if err != nil {
			return nil, fmt.Errorf("probe: creating pinger: %w", err)
		}
		pinger.Count = count
		if interval > 0 {
			pinger.Interval = interval
		}
		pinger.Timeout = timeout
		pinger.InterfaceName = link
		pinger.SetPrivileged(true)

		var rtts []time.Duration
		pinger.OnRecv = func(pkt *probing.Packet) {
			rtts = append(rtts, pkt.Rtt)
		}

		if err := pinger.RunWithContext(ctx); err != nil {
			log.Debug("probe: ping run error", "link", link, "gateway", gw, "error", err)
			return rtts, nil
		}
		return rtts, nil
	}
}

// DefaultMTUProbeFunc returns an MTUProbeFunc that shells out to the system
// ping(8) binary with -M do (don't-fragment), since pro-bing has no DF-bit
// control; this is the one place netopt execs ping directly rather than
// through pro-bing, mirroring the spec's literal "ping -M do" invocation.
// All other subprocess use in this package still funnels through
// netopt/internal/clock.Run for the deadline/process-group handling.
func DefaultMTUProbeFunc() MTUProbeFunc {
	return func(ctx context.Context, link string, gw net.IP, mtu int, timeout time.Duration) (bool, error) {
		payload := mtu - 28
		if payload <= 0 {
			return false, fmt.Errorf("probe: mtu %d too small for icmp+ip header", mtu)
		}
		res, err := clock.Run(ctx, timeout,
			"ping",
			"-M", "do",
			"-c", "3",
			"-W", strconv.Itoa(int(timeout.Seconds())),
			"-I", link,
			"-s", strconv.Itoa(payload),
			gw.String(),
		)
		if err != nil {
			return false, err
		}
		return !res.TimedOut && res.ExitCode == 0, nil
	}
}
