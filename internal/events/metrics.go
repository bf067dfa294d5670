package events

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mirrors event counts into Prometheus, one counter per
// (level, kind) pair, plus gauges the apply/watchdog flows update
// directly (not through the event stream).
type Metrics struct {
	events        *prometheus.CounterVec
	watchdogArmed prometheus.Gauge
	lastApplyUnix prometheus.Gauge
}

// NewMetrics registers this tool's collectors on reg and returns the
// handle used to update them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netopt",
			Name:      "events_total",
			Help:      "Count of emitted events by level and kind.",
		}, []string{"level", "kind"}),
		watchdogArmed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "netopt",
			Name:      "watchdog_armed",
			Help:      "1 while a watchdog confirmation window is open, else 0.",
		}),
		lastApplyUnix: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "netopt",
			Name:      "last_apply_unix_seconds",
			Help:      "Unix timestamp of the last successful apply.",
		}),
	}
}

func (m *Metrics) observe(level slog.Level, kind Kind) {
	m.events.WithLabelValues(level.String(), string(kind)).Inc()
}

func (m *Metrics) SetWatchdogArmed(armed bool) {
	if armed {
		m.watchdogArmed.Set(1)
	} else {
		m.watchdogArmed.Set(0)
	}
}

func (m *Metrics) RecordApply(unixSeconds int64) {
	m.lastApplyUnix.Set(float64(unixSeconds))
}

// ListenAndServe starts a blocking Prometheus scrape endpoint at addr.
// Intended to run in its own goroutine for the lifetime of a long-lived
// watchdog confirmation window; short CLI invocations typically skip it.
func ListenAndServe(addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}
