package planner

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"netopt/internal/aspath"
	"netopt/internal/inventory"
	"netopt/internal/probe"
)

func aliveProbe(link string, latency float64) probe.Probe {
	return probe.Probe{Link: link, LatencyMS: latency, LatencyValid: true, LossPct: 0}
}

func TestBuild_DualHomedHappyPath(t *testing.T) {
	gw := net.ParseIP("192.168.1.1")
	cands := []Candidate{
		{Link: inventory.Link{Name: "eth0", Class: inventory.ClassEthernet}, Gateway: gw, Probe: aliveProbe("eth0", 2)},
		{Link: inventory.Link{Name: "wlan0", Class: inventory.ClassWifi}, Gateway: gw, Probe: aliveProbe("wlan0", 15)},
	}
	plan := Build(cands, DefaultConfig())
	require.Len(t, plan, 2)
	require.Equal(t, "eth0", plan[0].Link.Name)
	// base=(200-2)/10=19.8, clamp[1,20]=19.8, ×2.0=39.6, reclamp[1,40]=39.6, truncate=39.
	// The spec's own narrative example claims 40 here via an admittedly inconsistent
	// aside ("rounded/clamped to documented 40 per class-cap policy"); §4.5's formula
	// text is authoritative per §9, and scenario 2's eth0=38 (latency 10ms) independently
	// confirms this formula, so 39 is the value this implementation produces.
	require.Equal(t, 39, plan[0].Weight)
	require.Equal(t, "wlan0", plan[1].Link.Name)
	require.Equal(t, 18, plan[1].Weight)
}

func TestBuild_MobileDeprioritized(t *testing.T) {
	gw := net.ParseIP("10.0.0.1")
	cands := []Candidate{
		{Link: inventory.Link{Name: "eth0", Class: inventory.ClassEthernet}, Gateway: gw, Probe: aliveProbe("eth0", 10)},
		{Link: inventory.Link{Name: "ppp0", Class: inventory.ClassMobile}, Gateway: gw, Probe: aliveProbe("ppp0", 50)},
	}
	plan := Build(cands, DefaultConfig())
	require.Len(t, plan, 2)
	require.Equal(t, "eth0", plan[0].Link.Name)
	require.Equal(t, "ppp0", plan[1].Link.Name)
	require.Equal(t, 7, plan[1].Weight) // (200-50)/10=15 * 0.5 = 7.5 -> truncate 7
}

func TestBuild_DeadSecondaryExcluded(t *testing.T) {
	gw := net.ParseIP("10.0.0.1")
	dead := probe.Probe{Link: "wlan0", LossPct: 100}
	cands := []Candidate{
		{Link: inventory.Link{Name: "eth0", Class: inventory.ClassEthernet}, Gateway: gw, Probe: aliveProbe("eth0", 5)},
		{Link: inventory.Link{Name: "wlan0", Class: inventory.ClassWifi}, Gateway: gw, Probe: dead},
	}
	plan := Build(cands, DefaultConfig())
	require.Len(t, plan, 1)
	require.Equal(t, "eth0", plan[0].Link.Name)
}

func TestBuild_EmptyWhenAllDead(t *testing.T) {
	cands := []Candidate{
		{Link: inventory.Link{Name: "eth0", Class: inventory.ClassEthernet}, Probe: probe.Probe{LossPct: 100}},
	}
	plan := Build(cands, DefaultConfig())
	require.Len(t, plan, 0)
}

func TestBuild_LossExcludeThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LossExcludePct = 0 // "any loss excludes"
	p := aliveProbe("eth0", 5)
	p.LossPct = 1
	cands := []Candidate{{Link: inventory.Link{Name: "eth0", Class: inventory.ClassEthernet}, Probe: p}}
	plan := Build(cands, cfg)
	require.Len(t, plan, 0)
}

func TestBuild_BGPBlendReducesNonTier1RelativeWeight(t *testing.T) {
	gw := net.ParseIP("192.168.1.1")
	cfg := DefaultConfig()
	cfg.EnableBGP = true

	cands := []Candidate{
		{
			Link: inventory.Link{Name: "eth0", Class: inventory.ClassEthernet}, Gateway: gw,
			Probe:      aliveProbe("eth0", 2),
			Annotation: &aspath.Annotation{HopCount: 3, Tier1Present: true},
		},
		{
			Link: inventory.Link{Name: "wlan0", Class: inventory.ClassWifi}, Gateway: gw,
			Probe:      aliveProbe("wlan0", 15),
			Annotation: &aspath.Annotation{HopCount: 9, Tier1Present: false},
		},
	}
	plan := Build(cands, cfg)
	require.Len(t, plan, 2)

	noBGP := Build([]Candidate{
		{Link: cands[0].Link, Gateway: gw, Probe: cands[0].Probe},
		{Link: cands[1].Link, Gateway: gw, Probe: cands[1].Probe},
	}, DefaultConfig())

	var bgpWifi, plainWifi int
	for _, e := range plan {
		if e.Link.Name == "wlan0" {
			bgpWifi = e.Weight
		}
	}
	for _, e := range noBGP {
		if e.Link.Name == "wlan0" {
			plainWifi = e.Weight
		}
	}
	require.Less(t, bgpWifi, plainWifi, "wifi's tier1-absent, high-hop-count path should score lower with BGP blend than without")
}

func TestBuild_DeterministicOrdering(t *testing.T) {
	gw := net.ParseIP("10.0.0.1")
	cands := []Candidate{
		{Link: inventory.Link{Name: "eth1", Class: inventory.ClassEthernet}, Gateway: gw, Probe: aliveProbe("eth1", 10)},
		{Link: inventory.Link{Name: "eth0", Class: inventory.ClassEthernet}, Gateway: gw, Probe: aliveProbe("eth0", 10)},
	}
	p1 := Build(cands, DefaultConfig())
	p2 := Build(cands, DefaultConfig())
	require.Equal(t, p1, p2)
	require.Equal(t, "eth0", p1[0].Link.Name) // equal weight, class -> lexicographic tie-break
}
