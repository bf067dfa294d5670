package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"netopt/internal/aspath"
	"netopt/internal/checkpoint"
	"netopt/internal/clock"
	"netopt/internal/config"
	"netopt/internal/events"
	"netopt/internal/inventory"
	"netopt/internal/planner"
	"netopt/internal/probe"
	"netopt/internal/route"
	"netopt/internal/safety"
)

type applyCmd struct{ flags *rootFlags }

func newApplyCmd(flags *rootFlags) *applyCmd { return &applyCmd{flags: flags} }

func (c *applyCmd) Command() *cobra.Command {
	var enableBGP bool
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Probe every link, plan weights, and install a multipath default route",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(c.flags)
			if err != nil {
				return err
			}
			if enableBGP {
				cfg.EnableBGP = true
			}
			sink := newLogger(c.flags)
			return runApply(cmd.Context(), c.flags, cfg, sink)
		},
	}
	cmd.Flags().BoolVar(&enableBGP, "enable-bgp", false, "enable AS-path blend even if not set in configuration")
	return cmd
}

func runApply(ctx context.Context, flags *rootFlags, cfg *config.Config, sink *events.Sink) error {
	clk := clock.New()
	log := sink.Logger()

	exclude, err := cfg.ExcludeInterfacesPattern()
	if err != nil {
		return fmt.Errorf("%w: EXCLUDE_INTERFACES: %v", config.ErrConfig, err)
	}

	inv := inventory.New(log, exclude)
	links, err := inv.List()
	if err != nil {
		return fmt.Errorf("%w: %v", inventory.ErrInventory, err)
	}

	type candidateLink struct {
		link inventory.Link
		gw   net.IP
	}
	var candLinks []candidateLink
	for _, l := range links {
		gw, err := inv.Gateway(l)
		if err != nil || gw == nil {
			continue
		}
		candLinks = append(candLinks, candidateLink{link: l, gw: gw})
	}

	lock := safety.NewLock(filepath.Join(flags.stateRoot, "netopt.lock"))
	remote := safety.IsRemoteSession(safety.OSLookupEnv, whoAmI)

	pingFn := probe.DefaultPingFunc(log)

	if err := safety.Preflight(ctx, safety.PreflightDeps{
		Links:         links,
		RequiredTools: []string{"ip", "ping", "sysctl"},
		PingGateway: func(pctx context.Context, timeout time.Duration) error {
			if len(candLinks) == 0 {
				return fmt.Errorf("no candidate links with a discovered gateway")
			}
			first := candLinks[0]
			rtts, err := pingFn(pctx, first.link.Name, first.gw, 1, 0, timeout)
			if err != nil {
				return fmt.Errorf("pinging %s via %s: %w", first.gw, first.link.Name, err)
			}
			if len(rtts) == 0 {
				return fmt.Errorf("no reply from %s via %s", first.gw, first.link.Name)
			}
			return nil
		},
		ConfigParseable: func() error {
			_, err := cfg.ExcludeInterfacesPattern()
			return err
		},
	}); err != nil {
		return err
	}

	var store checkpoint.Store
	checkpointID := ""
	if cfg.EnableCheckpoints {
		store = checkpoint.New(ctx, log, flags.stateRoot, cfg.CheckpointRetention)
		checkpointID, err = store.Create("pre-apply", "automatic pre-apply snapshot")
		if err != nil {
			return err
		}
		sink.Info(events.KindCheckpoint, "checkpoint created", "id", checkpointID)
	}

	applicator := route.New(ctx, log)
	backup, err := applicator.Backup()
	if err != nil {
		return fmt.Errorf("%w: %v", checkpoint.ErrCheckpoint, err)
	}

	tx, err := safety.Begin(lock, checkpointID, backup)
	if err != nil {
		return err
	}

	engine, err := probe.New(probe.Config{
		Logger: log,
		Clock:  clk,
		Ping:   probe.DefaultPingFunc(log),
		MTU:    probe.DefaultMTUProbeFunc(),
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	opts := probe.DefaultOptions()
	opts.PingCount = cfg.PingCount
	opts.ProbeMTU = cfg.ProbeJumbo
	opts.ProbeJumbo = cfg.ProbeJumbo
	opts.CacheTTL = time.Duration(cfg.CacheTTL) * time.Second
	opts.ParallelTimeout = time.Duration(cfg.ParallelTimeout) * time.Second
	opts.MaxConcurrency = cfg.MaxConcurrency

	pairs := make([]probe.Pair, 0, len(candLinks))
	for _, cl := range candLinks {
		pairs = append(pairs, probe.Pair{Link: cl.link.Name, Gateway: cl.gw})
	}
	probes := engine.ProbeBatch(ctx, pairs, opts)

	tracer := aspath.DefaultTracer(log)
	candidates := make([]planner.Candidate, 0, len(candLinks))
	for _, cl := range candLinks {
		p := probes[cl.link.Name]
		var ann *aspath.Annotation
		if cfg.EnableBGP {
			ann = aspath.Annotate(ctx, log, tracer, cl.link.Name, cl.gw, opts.LivenessTimeout)
		}
		candidates = append(candidates, planner.Candidate{
			Link: cl.link, Gateway: cl.gw, Probe: p, Annotation: ann,
		})
		sink.Info(events.KindProbe, "probed link", "link", cl.link.Name, "latency_ms", p.LatencyMS, "loss_pct", p.LossPct, "dead", p.Dead())
	}

	plannerCfg := planner.DefaultConfig()
	plannerCfg.MaxLatency = cfg.MaxLatency
	plannerCfg.LatencyDivisor = cfg.LatencyDivisor
	plannerCfg.MinWeight = cfg.MinWeight
	plannerCfg.MaxWeight = cfg.MaxWeight
	plannerCfg.LossExcludePct = cfg.LossExcludePct
	plannerCfg.EnableBGP = cfg.EnableBGP
	plannerCfg.ClassPriority = map[inventory.LinkClass]int{
		inventory.ClassEthernet: cfg.PriorityEthernet,
		inventory.ClassWifi:     cfg.PriorityWifi,
		inventory.ClassMobile:   cfg.PriorityMobile,
		inventory.ClassUnknown:  cfg.PriorityUnknown,
	}

	plan := planner.Build(candidates, plannerCfg)
	if len(plan) == 0 {
		_ = tx.MarkRolledBack()
		persistTransactionFailure(flags.stateRoot, checkpointID, outcomeRolledBack, sink)
		return fmt.Errorf("%w: empty plan, no alive links to route through", route.ErrApplyFailed)
	}
	for _, e := range plan {
		sink.Info(events.KindPlan, e.Rationale)
	}

	if err := applicator.Apply(plan); err != nil {
		_ = tx.MarkRolledBack()
		persistTransactionFailure(flags.stateRoot, checkpointID, outcomeRolledBack, sink)
		return err
	}
	if err := tx.MarkApplied(plan); err != nil {
		return err
	}
	sink.Info(events.KindApply, "applied multipath default route", "entries", len(plan))

	sysctlProfile := route.SysctlProfile{
		"net.ipv4.tcp_congestion_control": cfg.TCPCongestionControl,
		"net.ipv4.tcp_fastopen":           strconv.Itoa(cfg.TCPFastopen),
	}
	if cfg.RmemMax > 0 {
		sysctlProfile["net.core.rmem_max"] = strconv.Itoa(cfg.RmemMax)
	}
	if cfg.WmemMax > 0 {
		sysctlProfile["net.core.wmem_max"] = strconv.Itoa(cfg.WmemMax)
	}
	if _, err := applicator.TuneSysctl(sysctlProfile); err != nil {
		sink.Warn(events.KindApply, "tuning TCP stack parameters failed", "error", err)
	} else {
		sink.Info(events.KindApply, "tuned TCP stack parameters", "congestion_control", cfg.TCPCongestionControl)
	}

	dnsSkipped := true
	if len(cfg.DNSServers) > 0 {
		dnsSkipped = false
		if _, reason, derr := applicator.ConfigureDNS(cfg.DNSServers); derr != nil {
			sink.Warn(events.KindApply, "configuring DNS resolver failed", "error", derr)
		} else if reason != "" {
			dnsSkipped = true
			sink.Info(events.KindApply, "DNS configuration skipped", "reason", reason)
		} else {
			sink.Info(events.KindApply, "configured DNS resolver", "servers", cfg.DNSServers)
		}
	}

	warnings, err := safety.PostValidate(ctx, plan, safety.PostValidateDeps{
		CheckInstalledRoute: func(p planner.Plan) error {
			return checkInstalledRoute(ctx, p)
		},
		PingGateway: func(pctx context.Context, gw net.IP) error {
			link := plan[0].Link.Name
			rtts, perr := pingFn(pctx, link, gw, 1, 0, 2*time.Second)
			if perr != nil {
				return perr
			}
			if len(rtts) == 0 {
				return fmt.Errorf("no reply from %s", gw)
			}
			return nil
		},
		PingCanary: func(pctx context.Context, canary string) error {
			ip := net.ParseIP(canary)
			if ip == nil {
				return fmt.Errorf("invalid canary address %q", canary)
			}
			rtts, perr := pingFn(pctx, "", ip, 1, 0, 3*time.Second)
			if perr != nil {
				return perr
			}
			if len(rtts) == 0 {
				return fmt.Errorf("no reply from canary %s", canary)
			}
			return nil
		},
		ResolveDNS: func(pctx context.Context, name string) error {
			_, derr := net.DefaultResolver.LookupHost(pctx, name)
			return derr
		},
		CanaryDNSName:    "example.com",
		DNSConfigSkipped: dnsSkipped,
	})
	if err != nil {
		rerr := applicator.Restore(backup)
		if merr := tx.MarkRolledBack(); merr != nil {
			sink.Error(events.KindApply, "marking transaction rolled back failed", "error", merr)
		}
		if rerr != nil {
			_ = tx.MarkFatal()
			persistTransactionFailure(flags.stateRoot, checkpointID, outcomeFatal, sink)
			return fmt.Errorf("%w: restore also failed: %v", safety.ErrPostValidate, rerr)
		}
		persistTransactionFailure(flags.stateRoot, checkpointID, outcomeRolledBack, sink)
		return err
	}
	for _, w := range warnings {
		sink.Warn(events.KindApply, w)
	}

	if !remote || flags.noWatchdog || !cfg.EnableWatchdog {
		if err := tx.Commit(); err != nil {
			return err
		}
		sink.Info(events.KindApply, "committed (no watchdog window)")
		if perr := persistTransactionRecord(flags.stateRoot, transactionRecord{
			CheckpointID: checkpointID, Outcome: outcomeCommitted, Plan: plan, At: clk.Now(),
		}); perr != nil {
			sink.Warn(events.KindApply, "could not persist transaction record", "error", perr)
		}
		return nil
	}

	if err := persistPendingRollback(flags.stateRoot, backup); err != nil {
		sink.Warn(events.KindWatchdog, "could not persist out-of-band rollback state", "error", err)
	}
	if perr := persistTransactionRecord(flags.stateRoot, transactionRecord{
		CheckpointID: checkpointID, Outcome: outcomeAwaitingACK, Plan: plan, At: clk.Now(),
	}); perr != nil {
		sink.Warn(events.KindWatchdog, "could not persist transaction record", "error", perr)
	}

	wd := safety.NewWatchdog(clk, time.Duration(cfg.WatchdogTimeout)*time.Second, time.Duration(cfg.MaxWatchdogExtend)*time.Second,
		func() error {
			return applicator.Restore(backup)
		},
		func(rollbackErr error) {
			clearPendingRollback(flags.stateRoot)
			if rollbackErr != nil {
				sink.Fatal(events.KindWatchdog, "watchdog expiry rollback failed", "error", rollbackErr)
			} else {
				sink.Error(events.KindWatchdog, "watchdog expired, rolled back automatically")
			}
		},
	)
	tx.AttachWatchdog(wd)
	if err := wd.Arm(); err != nil {
		return err
	}

	if binPath, berr := os.Executable(); berr == nil {
		scriptPath := filepath.Join(flags.stateRoot, "rollback.sh")
		if werr := safety.WriteRollbackScript(scriptPath, binPath, flags.stateRoot); werr == nil {
			if serr := safety.ScheduleSupervisor(ctx, "netopt-watchdog.timer", scriptPath, time.Duration(cfg.WatchdogTimeout)*time.Second); serr != nil {
				sink.Warn(events.KindWatchdog, "scheduling out-of-band supervisor timer failed", "error", serr)
			}
		}
	}

	sink.Info(events.KindWatchdog, "armed confirmation window", "timeout_s", cfg.WatchdogTimeout)
	fmt.Println("Remote session detected. Run `netopt watchdog confirm` within the timeout window to keep this change.")
	return nil
}

func whoAmI() (string, error) {
	res, err := clock.Run(context.Background(), 2*time.Second, "who", "am", "i")
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// checkInstalledRoute reads back the kernel's current default route and
// confirms every planned (gateway, link) nexthop shows up somewhere in it
// (spec §4.8 post-apply validation step 1). It doesn't require an exact
// line-for-line match against `ip route show default`'s multipath
// rendering, only that nothing planned is missing.
func checkInstalledRoute(ctx context.Context, plan planner.Plan) error {
	res, err := clock.Run(ctx, 5*time.Second, "ip", "-4", "route", "show", "default")
	if err != nil {
		return fmt.Errorf("reading installed route: %w", err)
	}
	installed := res.Stdout
	for _, entry := range plan {
		if !strings.Contains(installed, entry.Gateway.String()) || !strings.Contains(installed, entry.Link.Name) {
			return fmt.Errorf("planned nexthop %s via %s not found in installed route", entry.Gateway, entry.Link.Name)
		}
	}
	return nil
}
