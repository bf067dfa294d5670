// Package aspath implements the optional AS-path intelligence annotation
// (spec C4): tracing the autonomous-system hops to a gateway and tagging
// Tier-1 transit presence. It never fails a probe — tool absence, timeout,
// or empty output just means no annotation.
package aspath

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"netopt/internal/clock"
)

// Annotation enriches a probe with AS-path telemetry.
type Annotation struct {
	ASPath       []uint32
	Tier1Present bool
	HopCount     int
}

// tier1 is the static set of Tier-1 transit autonomous systems recognized by
// this system (spec §4.4).
var tier1 = map[uint32]struct{}{
	174: {}, 701: {}, 1299: {}, 2914: {}, 3257: {}, 3356: {},
	3491: {}, 5511: {}, 6453: {}, 6461: {}, 6762: {}, 7018: {},
}

// Tracer traces the AS path to a destination, typically backed by mtr's
// --aslookup mode. An error (tool missing, timeout, non-zero exit) and an
// empty path both mean "no data", which Annotate treats as "no annotation"
// rather than a probe failure.
type Tracer func(ctx context.Context, link string, gw net.IP, timeout time.Duration) ([]uint32, error)

// Annotate enriches a probe's gateway trace into an Annotation. Any error
// returned by tracer is swallowed per spec §4.4's failure policy: it's
// logged and nil is returned rather than propagated.
func Annotate(ctx context.Context, log *slog.Logger, tracer Tracer, link string, gw net.IP, timeout time.Duration) *Annotation {
	asPath, err := tracer(ctx, link, gw, timeout)
	if err != nil {
		log.Debug("aspath: trace failed, proceeding without annotation", "link", link, "gateway", gw, "error", err)
		return nil
	}
	if len(asPath) == 0 {
		return nil
	}

	tier1Present := false
	for _, as := range asPath {
		if _, ok := tier1[as]; ok {
			tier1Present = true
			break
		}
	}

	return &Annotation{
		ASPath:       asPath,
		Tier1Present: tier1Present,
		HopCount:     len(asPath),
	}
}

var mtrASPattern = regexp.MustCompile(`AS(\d+)`)

// DefaultTracer invokes mtr in report mode with AS lookup enabled and parses
// the AS numbers out of its report, in trace order, collapsing consecutive
// duplicates (an AS often appears on several consecutive hops).
func DefaultTracer(log *slog.Logger) Tracer {
	return func(ctx context.Context, link string, gw net.IP, timeout time.Duration) ([]uint32, error) {
		res, err := clock.Run(ctx, timeout,
			"mtr",
			"--report",
			"--report-cycles", "1",
			"--no-dns",
			"--aslookup",
			"--interface", link,
			gw.String(),
		)
		if err != nil {
			return nil, fmt.Errorf("aspath: running mtr: %w", err)
		}
		if res.TimedOut {
			return nil, fmt.Errorf("aspath: mtr timed out")
		}
		if res.ExitCode != 0 {
			return nil, fmt.Errorf("aspath: mtr exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
		}
		return parseASPath(res.Stdout), nil
	}
}

// parseASPath extracts "AS<number>" tokens from an mtr report in line order,
// deduplicating only consecutive repeats so a path that legitimately
// transits the same AS twice (via different peering) is preserved.
func parseASPath(report string) []uint32 {
	var path []uint32
	scanner := bufio.NewScanner(strings.NewReader(report))
	for scanner.Scan() {
		line := scanner.Text()
		m := mtrASPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil {
			continue
		}
		as := uint32(n)
		if len(path) == 0 || path[len(path)-1] != as {
			path = append(path, as)
		}
	}
	return path
}
