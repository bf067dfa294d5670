// Package planner implements the deterministic weight and route planner
// (spec C5): scoring each alive probe into an integer next-hop weight from
// latency, link-class priority, and an optional AS-path blend, then
// ordering the result for reproducible route installation.
package planner

import (
	"fmt"
	"math"
	"net"
	"sort"

	"netopt/internal/aspath"
	"netopt/internal/inventory"
	"netopt/internal/probe"
)

// PlanEntry is one candidate next-hop: the link/gateway it rides on, its
// computed weight, and the probe it was derived from. A PlanEntry exists
// only for probes classified alive (spec §3 invariant).
type PlanEntry struct {
	Link      inventory.Link
	Gateway   net.IP
	Weight    int
	Probe     probe.Probe
	Rationale string
}

// Plan is an ordered sequence of PlanEntry, sorted by descending weight
// with class-priority then link-name tie-breaks for reproducibility.
type Plan []PlanEntry

// Candidate is one (link, gateway) with its measurement and optional
// AS-path annotation, the planner's sole input shape.
type Candidate struct {
	Link       inventory.Link
	Gateway    net.IP
	Probe      probe.Probe
	Annotation *aspath.Annotation
}

// Config tunes weight computation (spec §4.5 / §6 configuration keys).
type Config struct {
	MaxLatency     float64 // MAX_LATENCY, default 200ms
	LatencyDivisor float64 // LATENCY_DIVISOR, default 10
	MinWeight      int     // MIN_WEIGHT, default 1
	MaxWeight      int     // MAX_WEIGHT, default 20
	LossExcludePct float64 // LOSS_EXCLUDE_PCT, default 75
	ClassPriority  map[inventory.LinkClass]int
	EnableBGP      bool
}

// DefaultConfig returns the spec's documented defaults, including the
// class-priority ordinals used for tie-breaking (lower wins).
func DefaultConfig() Config {
	return Config{
		MaxLatency:     200,
		LatencyDivisor: 10,
		MinWeight:      1,
		MaxWeight:      20,
		LossExcludePct: 75,
		ClassPriority: map[inventory.LinkClass]int{
			inventory.ClassEthernet: 0,
			inventory.ClassWifi:     1,
			inventory.ClassMobile:   2,
			inventory.ClassUnknown:  3,
		},
	}
}

func classMultiplier(c inventory.LinkClass) float64 {
	switch c {
	case inventory.ClassEthernet:
		return 2.0
	case inventory.ClassMobile:
		return 0.5
	default: // wifi, unknown
		return 1.0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Build scores every alive, non-excluded candidate and returns a
// deterministically ordered Plan. Dead probes and probes whose loss meets
// or exceeds cfg.LossExcludePct are silently dropped, never surfaced as an
// error — an empty result is a legitimate outcome the caller (the safety
// envelope) must refuse to apply.
func Build(candidates []Candidate, cfg Config) Plan {
	plan := make(Plan, 0, len(candidates))

	for _, c := range candidates {
		if c.Probe.Dead() {
			continue
		}
		if c.Probe.LossPct >= cfg.LossExcludePct {
			continue
		}

		base := clamp((cfg.MaxLatency-c.Probe.LatencyMS)/cfg.LatencyDivisor, float64(cfg.MinWeight), float64(cfg.MaxWeight))
		mult := classMultiplier(c.Link.Class)

		capMax := float64(cfg.MaxWeight)
		if c.Link.Class == inventory.ClassEthernet {
			capMax = float64(cfg.MaxWeight) * 2
		}
		weighted := clamp(base*mult, float64(cfg.MinWeight), capMax)
		weight := int(weighted) // truncate, per spec §4.5

		rationale := fmt.Sprintf("%s: %s %.1fms ×%.1f → w=%d", c.Link.Name, c.Link.Class, c.Probe.LatencyMS, mult, weight)

		if cfg.EnableBGP && c.Annotation != nil {
			bonus := math.Max(0, 100-float64(c.Annotation.HopCount)*5)
			if c.Annotation.Tier1Present {
				bonus += 20
			}
			blended := math.Round(0.7*float64(weight) + 0.3*(bonus/5))
			weight = int(clamp(blended, 1, 40))
			rationale = fmt.Sprintf("%s (bgp: hops=%d tier1=%v bonus=%.0f) → w=%d",
				rationale, c.Annotation.HopCount, c.Annotation.Tier1Present, bonus, weight)
		}

		if weight < 1 {
			weight = 1
		}

		plan = append(plan, PlanEntry{
			Link:      c.Link,
			Gateway:   c.Gateway,
			Weight:    weight,
			Probe:     c.Probe,
			Rationale: rationale,
		})
	}

	sortPlan(plan, cfg.ClassPriority)
	return plan
}

// sortPlan orders entries by descending weight, then ascending class
// priority, then ascending link name — deterministic across runs given
// identical inputs (spec's "Determinism of planning" law).
func sortPlan(plan Plan, classPriority map[inventory.LinkClass]int) {
	sort.SliceStable(plan, func(i, j int) bool {
		a, b := plan[i], plan[j]
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		pa, pb := classPriority[a.Link.Class], classPriority[b.Link.Class]
		if pa != pb {
			return pa < pb
		}
		return a.Link.Name < b.Link.Name
	})
}
