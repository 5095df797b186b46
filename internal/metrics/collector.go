// Package metrics provides Prometheus metrics for interlope.
//
// The collector is fed from the scheduling loop callbacks: one outcome per
// run, one wake-up per wait, and state transitions. Percentile gauges are
// refreshed from run statistics snapshots.
package metrics

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/randomizedcoder/interlope/internal/process"
	"github.com/randomizedcoder/interlope/internal/scheduler"
	"github.com/randomizedcoder/interlope/internal/stats"
	"github.com/randomizedcoder/interlope/internal/timeseries"
)

const namespace = "interlope"

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version       string
	Mode          string // "interval", "schedule" or "trigger_only"
	TriggerSignal string

	// Optional sources exported as counters. Nil sources are not registered.
	TriggersReceived      func() int64
	DiagnosticsSuppressed func() int64
}

// Collector manages all Prometheus metrics for the loop.
type Collector struct {
	info             *prometheus.GaugeVec
	runsTotal        *prometheus.CounterVec
	runsStarted      prometheus.Counter
	wakeupsTotal     *prometheus.CounterVec
	runDuration      prometheus.Histogram
	lastRunTimestamp prometheus.Gauge
	lastExitCode     prometheus.Gauge
	state            *prometheus.GaugeVec
	durationP50      prometheus.Gauge
	durationP95      prometheus.Gauge
	durationP99      prometheus.Gauge
	uptimeSeconds    prometheus.Gauge
	runRate          *prometheus.GaugeVec
	failureRate      *prometheus.GaugeVec

	startTime time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Information about the scheduled command (value always 1)",
		}, []string{"version", "mode", "trigger_signal"}),

		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Command invocations by outcome",
		}, []string{"outcome"}),

		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Runs launched; exceeds runs_total while one is in flight",
		}),

		wakeupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wakeups_total",
			Help:      "Wake-ups from the waiting state by reason",
		}, []string{"reason"}),

		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Command run duration",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms .. ~262s
		}),

		lastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run started",
		}),

		lastExitCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_exit_code",
			Help:      "Exit code of the last run",
		}),

		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Current loop state (1 for the active state)",
		}, []string{"state"}),

		durationP50: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_p50_seconds",
			Help:      "Median run duration (T-Digest)",
		}),
		durationP95: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_p95_seconds",
			Help:      "95th percentile run duration (T-Digest)",
		}),
		durationP99: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_p99_seconds",
			Help:      "99th percentile run duration (T-Digest)",
		}),

		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since interlope started",
		}),

		runRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_per_minute",
			Help:      "Rolling run rate per minute",
		}, []string{"window"}),
		failureRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "failures_per_minute",
			Help:      "Rolling failure rate per minute",
		}, []string{"window"}),

		startTime: time.Now(),
	}

	registry.MustRegister(
		c.info,
		c.runsTotal,
		c.runsStarted,
		c.wakeupsTotal,
		c.runDuration,
		c.lastRunTimestamp,
		c.lastExitCode,
		c.state,
		c.durationP50,
		c.durationP95,
		c.durationP99,
		c.uptimeSeconds,
		c.runRate,
		c.failureRate,
	)

	if cfg.TriggersReceived != nil {
		src := cfg.TriggersReceived
		registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_received_total",
			Help:      "Trigger signals delivered to the process",
		}, func() float64 { return float64(src()) }))
	}
	if cfg.DiagnosticsSuppressed != nil {
		src := cfg.DiagnosticsSuppressed
		registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_suppressed_total",
			Help:      "Failure reports recorded but not logged because of the rate limit",
		}, func() float64 { return float64(src()) }))
	}

	c.info.WithLabelValues(cfg.Version, cfg.Mode, cfg.TriggerSignal).Set(1)

	// Pre-create label values so every series exists from the first scrape.
	for _, k := range []process.Kind{process.Success, process.LaunchFailure, process.ChildFailure} {
		c.runsTotal.WithLabelValues(k.String())
	}
	for _, r := range []scheduler.WakeReason{scheduler.WakeTrigger, scheduler.WakeInterval, scheduler.WakeSchedule} {
		c.wakeupsTotal.WithLabelValues(r.String())
	}
	c.SetState(scheduler.StateIdle)

	return c
}

// RecordRunStart counts a launch before its outcome is known.
func (c *Collector) RecordRunStart() {
	c.runsStarted.Inc()
}

// RecordOutcome records one finished run.
func (c *Collector) RecordOutcome(o process.Outcome) {
	c.runsTotal.WithLabelValues(o.Kind.String()).Inc()
	c.runDuration.Observe(o.Duration.Seconds())
	c.lastExitCode.Set(float64(o.ExitCode))
	if !o.Started.IsZero() {
		c.lastRunTimestamp.Set(float64(o.Started.UnixNano()) / 1e9)
	}
}

// RecordWake records one wake-up.
func (c *Collector) RecordWake(reason scheduler.WakeReason) {
	c.wakeupsTotal.WithLabelValues(reason.String()).Inc()
}

// SetState marks s as the active state.
func (c *Collector) SetState(s scheduler.State) {
	for _, st := range []scheduler.State{scheduler.StateIdle, scheduler.StateRunning, scheduler.StateWaiting, scheduler.StateStopped} {
		v := 0.0
		if st == s {
			v = 1
		}
		c.state.WithLabelValues(st.String()).Set(v)
	}
}

// RecordSnapshot refreshes the percentile and uptime gauges.
func (c *Collector) RecordSnapshot(snap *stats.Snapshot) {
	c.uptimeSeconds.Set(time.Since(c.startTime).Seconds())
	if snap == nil || snap.Runs == 0 {
		return
	}
	c.durationP50.Set(snap.P50.Seconds())
	c.durationP95.Set(snap.P95.Seconds())
	c.durationP99.Set(snap.P99.Seconds())
}

// RecordRates refreshes the rolling rate gauges.
func (c *Collector) RecordRates(r timeseries.Rates) {
	for window, w := range map[string]timeseries.Window{
		"1m":  r.Last1m,
		"5m":  r.Last5m,
		"15m": r.Last15m,
	} {
		c.runRate.WithLabelValues(window).Set(w.Runs)
		c.failureRate.WithLabelValues(window).Set(w.Failures)
	}
}

// WriteText writes every interlope metric family in g to w in the
// Prometheus text format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), namespace+"_") {
			continue
		}
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
