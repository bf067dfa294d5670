package probe

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/jellydator/ttlcache/v3"
	"github.com/jonboulle/clockwork"
)

// PingFunc sends count ICMP echoes spaced by interval to gw, bound to link,
// and returns the round-trip time of each successful reply. A returned error
// means the send path itself failed (interface missing, permission denied);
// a clean completion with fewer RTTs than count means some echoes were
// simply unanswered.
type PingFunc func(ctx context.Context, link string, gw net.IP, count int, interval, timeout time.Duration) ([]time.Duration, error)

// MTUProbeFunc sends three DF-set echoes of the given size to gw over link
// and reports whether all three succeeded.
type MTUProbeFunc func(ctx context.Context, link string, gw net.IP, mtu int, timeout time.Duration) (bool, error)

// Config wires an Engine's dependencies. Logger and Ping are required;
// validate defaults Clock to the real clock and CacheTTL to DefaultOptions'
// value. MTU may be nil, in which case MTU discovery is skipped.
type Config struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Ping     PingFunc
	MTU      MTUProbeFunc
	CacheTTL time.Duration
}

func (c *Config) validate() error {
	if c.Logger == nil {
		return errors.New("probe: logger is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Ping == nil {
		return errors.New("probe: ping func is required")
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultOptions().CacheTTL
	}
	return nil
}

// Engine is the C3 probe engine: a cache-fronted, concurrency-bounded
// measurement facade over a pluggable PingFunc/MTUProbeFunc pair.
type Engine struct {
	log   *slog.Logger
	clock clockwork.Clock
	ping  PingFunc
	mtu   MTUProbeFunc
	cache *ttlcache.Cache[string, Probe]
}

// New constructs an Engine. The returned Engine owns a background cache
// sweeper goroutine; call Close to stop it.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cache := ttlcache.New[string, Probe](
		ttlcache.WithTTL[string, Probe](cfg.CacheTTL),
	)
	go cache.Start()
	return &Engine{log: cfg.Logger, clock: cfg.Clock, ping: cfg.Ping, mtu: cfg.MTU, cache: cache}, nil
}

// Close stops the cache's background sweeper.
func (e *Engine) Close() {
	e.cache.Stop()
}

// Probe measures (or returns a cached measurement for) one (link, gateway)
// pair. Dead results are cached identically to alive ones, so confirmed-down
// gateways aren't re-probed every call (spec §3).
func (e *Engine) Probe(ctx context.Context, link string, gw net.IP, opts Options) (Probe, error) {
	opts = opts.normalize()
	key := cacheKey(link, gw)

	if item := e.cache.Get(key); item != nil {
		p := item.Value()
		p.Source = SourceCached
		return p, nil
	}

	p := e.measure(ctx, link, gw, opts)
	e.cache.Set(key, p, opts.CacheTTL)
	return p, nil
}

// ProbeBatch measures a set of (link, gateway) pairs concurrently, bounded
// by opts.MaxConcurrency and an overall opts.ParallelTimeout. Probes that
// don't complete within the batch deadline are recorded dead/fresh rather
// than omitted, so callers always get one entry per input pair. The
// returned map carries no ordering guarantee (spec §4.3).
func (e *Engine) ProbeBatch(ctx context.Context, pairs []Pair, opts Options) map[string]Probe {
	opts = opts.normalize()

	batchCtx, cancel := context.WithTimeout(ctx, opts.ParallelTimeout)
	defer cancel()

	pool := pond.NewPool(opts.MaxConcurrency)
	defer pool.StopAndWait()

	results := make(map[string]Probe, len(pairs))
	var mu sync.Mutex
	tasks := make([]pond.Task, 0, len(pairs))

	for _, pair := range pairs {
		pair := pair
		tasks = append(tasks, pool.Submit(func() {
			p := e.measureWithBudget(batchCtx, pair.Link, pair.Gateway, opts)
			mu.Lock()
			results[pair.Link] = p
			mu.Unlock()
		}))
	}
	for _, t := range tasks {
		t.Wait()
	}
	return results
}

// measureWithBudget is measure, but falls back to an unreachable/fresh
// result if the batch deadline fires mid-probe, and always consults the
// cache first like Probe does.
func (e *Engine) measureWithBudget(ctx context.Context, link string, gw net.IP, opts Options) Probe {
	key := cacheKey(link, gw)
	if item := e.cache.Get(key); item != nil {
		p := item.Value()
		p.Source = SourceCached
		return p
	}

	type outcome struct{ p Probe }
	ch := make(chan outcome, 1)
	go func() { ch <- outcome{e.measure(ctx, link, gw, opts)} }()

	select {
	case o := <-ch:
		e.cache.Set(key, o.p, opts.CacheTTL)
		return o.p
	case <-ctx.Done():
		p := Probe{
			Link: link, Gateway: gw,
			LossPct: 100, MeasuredAt: e.clock.Now(), Source: SourceFresh,
		}
		e.cache.Set(key, p, opts.CacheTTL)
		return p
	}
}

// measure runs the full probe procedure (spec §4.3): a 1-second liveness
// gate, then a full latency/jitter/loss sample, then optional MTU discovery.
func (e *Engine) measure(ctx context.Context, link string, gw net.IP, opts Options) Probe {
	now := e.clock.Now()

	gateRTTs, err := e.ping(ctx, link, gw, 1, 0, opts.LivenessTimeout)
	if err != nil {
		e.log.Debug("probe: liveness gate send failed", "link", link, "gateway", gw, "error", err)
	}
	if len(gateRTTs) == 0 {
		return Probe{Link: link, Gateway: gw, LossPct: 100, MeasuredAt: now, Source: SourceFresh}
	}

	rtts, err := e.ping(ctx, link, gw, opts.PingCount, opts.PingInterval, opts.LivenessTimeout)
	if err != nil {
		e.log.Debug("probe: sample send failed", "link", link, "gateway", gw, "error", err)
	}
	measuredAt := e.clock.Now()

	loss := 100 * float64(opts.PingCount-len(rtts)) / float64(opts.PingCount)
	if len(rtts) == 0 {
		return Probe{Link: link, Gateway: gw, LossPct: 100, MeasuredAt: measuredAt, Source: SourceFresh}
	}

	p := Probe{
		Link:         link,
		Gateway:      gw,
		LatencyMS:    mean(rtts),
		LatencyValid: true,
		LossPct:      loss,
		MeasuredAt:   measuredAt,
		Source:       SourceFresh,
	}
	if len(rtts) >= 2 {
		j := populationStdDevMS(rtts)
		p.JitterMS = &j
	}

	if opts.ProbeMTU && e.mtu != nil {
		if m := e.discoverMTU(ctx, link, gw, opts); m > 0 {
			p.MTU = &m
		}
	}
	return p
}

// discoverMTU binary-searches [576, 1500] (or [576, 9000] when ProbeJumbo is
// set) for the largest MTU at which three DF-set probes all succeed.
func (e *Engine) discoverMTU(ctx context.Context, link string, gw net.IP, opts Options) int {
	lo, hi := 576, 1500
	if opts.ProbeJumbo {
		hi = 9000
	}

	best := 0
	for lo <= hi {
		mid := (lo + hi) / 2
		ok, err := e.mtu(ctx, link, gw, mid, opts.LivenessTimeout)
		if err != nil || !ok {
			hi = mid - 1
			continue
		}
		best = mid
		lo = mid + 1
	}
	return best
}
