// Package events implements the event sink (spec C9): a pure producer of
// structured DEBUG/INFO/WARN/ERROR/FATAL records, each tagged with an
// event kind and carrying monotonic and wall-clock timestamps. Durable
// storage, rotation, and journal integration are the collaborator's job —
// this package only emits through slog and, optionally, Prometheus
// counters/gauges.
package events

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
)

// Kind tags the subsystem an event originates from, matching the
// component abbreviations used throughout this tool's documentation.
type Kind string

const (
	KindProbe      Kind = "probe"
	KindPlan       Kind = "plan"
	KindApply      Kind = "apply"
	KindWatchdog   Kind = "watchdog"
	KindCheckpoint Kind = "checkpoint"
	KindPreflight  Kind = "preflight"
	KindConfig     Kind = "config"
)

// Sink is the C9 event producer: a thin, mutex-free wrapper over a
// *slog.Logger (slog.Logger is itself safe for concurrent use) that
// stamps every record with a monotonic timestamp, process identity, and
// event kind, and mirrors level counts into Prometheus.
type Sink struct {
	log     *slog.Logger
	clock   clockwork.Clock
	pid     int
	metrics *Metrics
}

// NewSink wraps log into a Sink. metrics may be nil to disable Prometheus
// mirroring (e.g. in short-lived CLI invocations with no scrape target).
func NewSink(log *slog.Logger, clock clockwork.Clock, metrics *Metrics) *Sink {
	return &Sink{log: log, clock: clock, pid: os.Getpid(), metrics: metrics}
}

func (s *Sink) emit(level slog.Level, kind Kind, msg string, fields ...any) {
	attrs := append([]any{
		slog.String("kind", string(kind)),
		slog.Time("wall_time_utc", time.Now().UTC()),
		slog.Time("monotonic", s.clock.Now()),
		slog.Int("pid", s.pid),
	}, fields...)
	s.log.Log(context.Background(), level, msg, attrs...)
	if s.metrics != nil {
		s.metrics.observe(level, kind)
	}
}

func (s *Sink) Debug(kind Kind, msg string, fields ...any) { s.emit(slog.LevelDebug, kind, msg, fields...) }
func (s *Sink) Info(kind Kind, msg string, fields ...any)  { s.emit(slog.LevelInfo, kind, msg, fields...) }
func (s *Sink) Warn(kind Kind, msg string, fields ...any)  { s.emit(slog.LevelWarn, kind, msg, fields...) }
func (s *Sink) Error(kind Kind, msg string, fields ...any) { s.emit(slog.LevelError, kind, msg, fields...) }

// LevelFatal is one step above slog's built-in levels, used for events
// that precede a non-zero process exit (the spec's FATAL level, e.g. a
// transaction reaching the FATAL state).
const LevelFatal slog.Level = slog.LevelError + 4

func (s *Sink) Fatal(kind Kind, msg string, fields ...any) { s.emit(LevelFatal, kind, msg, fields...) }

// Logger returns the underlying *slog.Logger so collaborators that take a
// concrete logger (inventory, probe, route, checkpoint, aspath) can share
// the same handler the sink writes through.
func (s *Sink) Logger() *slog.Logger { return s.log }

// NewLogger builds the *slog.Logger a Sink wraps. Interactive terminals
// get tint's colored, human-readable handler (the pattern this tool's
// control-plane CLI siblings use); --json switches to slog's stock JSON
// handler for machine consumption (the pattern the daemon side uses),
// per spec §4.9's "JSON records consumed by the external logger".
func NewLogger(verbose, jsonOutput bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if jsonOutput {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}
