// Package orchestrator wires the signal bridge, the scheduling loop and the
// observers (stats, metrics, dashboard, systemd) together and runs them under
// one context.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/randomizedcoder/interlope/internal/config"
	"github.com/randomizedcoder/interlope/internal/logging"
	"github.com/randomizedcoder/interlope/internal/metrics"
	"github.com/randomizedcoder/interlope/internal/preflight"
	"github.com/randomizedcoder/interlope/internal/process"
	"github.com/randomizedcoder/interlope/internal/scheduler"
	"github.com/randomizedcoder/interlope/internal/sdnotify"
	"github.com/randomizedcoder/interlope/internal/stats"
	"github.com/randomizedcoder/interlope/internal/timeseries"
	"github.com/randomizedcoder/interlope/internal/trigger"
	"github.com/randomizedcoder/interlope/internal/tui"
)

const (
	// snapshotInterval is how often percentile and rate gauges are refreshed.
	snapshotInterval = time.Second

	shutdownTimeout = 5 * time.Second
)

// Options holds dependencies that are not part of the user configuration.
type Options struct {
	Version string

	// Runner overrides the shell runner. Tests use it to observe invocations.
	Runner process.Runner

	// Output receives preflight results and the exit summary. Default stderr.
	Output io.Writer

	// DashboardInput and DashboardOutput override the terminal for the TUI.
	DashboardInput  io.Reader
	DashboardOutput io.Writer
}

// Orchestrator coordinates all components for one scheduled command.
type Orchestrator struct {
	config *config.Config
	opts   Options
	logger *slog.Logger
	out    io.Writer

	flag     *trigger.Flag
	reporter *logging.Reporter
	runner   process.Runner
	schedule cron.Schedule
	stats    *stats.RunStats
	rates    *timeseries.RateTracker
	registry *prometheus.Registry
	notifier *sdnotify.Notifier

	// Set up by Run.
	bridge        *trigger.Bridge
	collector     *metrics.Collector
	metricsServer *metrics.Server
	loop          *scheduler.Loop
	program       *tea.Program
}

// New creates a new Orchestrator. cfg must already be validated.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var schedule cron.Schedule
	if cfg.Schedule != "" {
		s, err := config.ParseSchedule(cfg.Schedule)
		if err != nil {
			return nil, err
		}
		schedule = s
	}

	runner := opts.Runner
	if runner == nil {
		sr := process.NewShellRunner(cfg.Shell)
		if cfg.TUIEnabled {
			// Child output would corrupt the dashboard.
			sr.Stdout = io.Discard
			sr.Stderr = io.Discard
			// The dashboard owns the terminal's input.
			sr.Stdin = strings.NewReader("")
		}
		runner = sr
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	return &Orchestrator{
		config:   cfg,
		opts:     opts,
		logger:   logger,
		out:      out,
		flag:     trigger.NewFlag(),
		reporter: logging.NewReporter(logger, cfg.ReportRate, cfg.ReportBurst),
		runner:   runner,
		schedule: schedule,
		stats:    stats.NewRunStats(),
		rates:    timeseries.NewRateTracker(),
		registry: prometheus.NewRegistry(),
		notifier: sdnotify.New(logger),
	}, nil
}

// Run checks preconditions, installs the trigger and runs the loop until ctx
// is cancelled or the dashboard is quit. Setup failures are returned before
// the command is ever invoked.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.preflight(ctx); err != nil {
		return err
	}

	table, err := trigger.NewTable(o.config.TriggerID, trigger.Reserved())
	if err != nil {
		return fmt.Errorf("trigger signal: %w", err)
	}
	bridge, err := trigger.Install(table, o.flag)
	if err != nil {
		return fmt.Errorf("signal registration failed: %w", err)
	}
	o.bridge = bridge
	defer bridge.Stop()

	o.logger.Info("trigger_installed",
		"signal", bridge.SignalName(),
		"reserved", trigger.ReservedName(),
		"ignored", len(table.Ignored()),
		"pid", os.Getpid(),
	)
	o.logger.Debug("signal_table", "table", table.String())

	o.collector = metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version:               o.opts.Version,
		Mode:                  o.ModeLabel(),
		TriggerSignal:         bridge.SignalName(),
		TriggersReceived:      bridge.Received,
		DiagnosticsSuppressed: o.reporter.Suppressed,
	}, o.registry)

	o.loop = scheduler.New(scheduler.Config{
		Command:  o.config.Command,
		Interval: o.config.Interval,
		Schedule: o.schedule,
		Runner:   o.runner,
		Flag:     o.flag,
		Reporter: o.reporter,
		Logger:   o.logger,
		Callbacks: scheduler.Callbacks{
			OnStateChange: o.onStateChange,
			OnRunStart:    o.onRunStart,
			OnOutcome:     o.onOutcome,
			OnWake:        o.onWake,
		},
	})

	if o.config.MetricsAddr != "" {
		o.metricsServer = metrics.NewServerWithGatherer(o.config.MetricsAddr, o.registry, o.logger)
		if err := o.metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		o.metricsServer.SetReady(true)
	}

	o.notifier.Ready()
	o.notifier.Status("starting %s", o.ModeDescription())

	o.logger.Info("loop_starting",
		"command", o.config.Command,
		"mode", o.ModeDescription(),
		"shell", o.config.Shell,
	)

	runErr := o.runGroup(ctx)

	o.shutdown()
	o.printExitSummary()

	return runErr
}

// runGroup runs the loop and its helpers until the first of them ends the
// group: context cancellation or the dashboard quit key.
func (o *Orchestrator) runGroup(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if o.config.TUIEnabled {
		o.program = o.newProgram(gctx)
	}

	g.Go(func() error {
		err := o.loop.Run(gctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	})

	if o.config.WatchPath != "" {
		g.Go(func() error {
			// A broken watcher never stops the loop; the signal still works.
			if err := trigger.WatchFile(gctx, o.config.WatchPath, o.flag, o.logger); err != nil {
				o.reporter.Report(gctx, slog.LevelError, "watch_failed",
					"path", o.config.WatchPath,
					"error", err.Error(),
				)
			}
			return nil
		})
	}

	g.Go(func() error {
		if err := o.notifier.Watchdog(gctx); err != nil {
			o.logger.Warn("watchdog_disabled", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		o.refreshSnapshots(gctx)
		return nil
	})

	if o.program != nil {
		g.Go(func() error {
			// Quitting the dashboard ends the run.
			defer cancel()
			if _, err := o.program.Run(); err != nil &&
				!errors.Is(err, tea.ErrProgramKilled) &&
				!errors.Is(err, tea.ErrInterrupted) {
				return fmt.Errorf("dashboard: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func (o *Orchestrator) newProgram(ctx context.Context) *tea.Program {
	model := tui.New(tui.Config{
		Command:           o.config.Command,
		Mode:              o.ModeDescription(),
		TriggerSignal:     o.bridge.SignalName(),
		MetricsAddr:       o.metricsAddr(),
		StatsSource:       o.stats,
		RatesSource:       o.rates,
		StateSource:       o.loop.State,
		DiagnosticsSource: o.reporter,
		Trigger:           o.flag.Set,
	})

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if o.opts.DashboardInput != nil || o.opts.DashboardOutput != nil {
		opts = append(opts, tea.WithInput(o.opts.DashboardInput), tea.WithOutput(o.opts.DashboardOutput))
	} else {
		opts = append(opts, tea.WithAltScreen())
	}
	return tea.NewProgram(model, opts...)
}

func (o *Orchestrator) refreshSnapshots(ctx context.Context) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.collector.RecordSnapshot(o.stats.Snapshot())
			o.rates.RecordSample()
			o.collector.RecordRates(o.rates.Rates())
		}
	}
}

// preflight runs the startup checks. The usable-shell precondition is
// checked even when the other checks are skipped.
func (o *Orchestrator) preflight(ctx context.Context) error {
	if o.config.SkipPreflight {
		if o.opts.Runner != nil {
			// Injected runners do not use the shell.
			return nil
		}
		if err := process.ShellUsable(ctx, o.config.Shell); err != nil {
			return fmt.Errorf("no usable shell: %w", err)
		}
		return nil
	}

	result := preflight.RunAll(ctx, preflight.Options{
		Shell:     o.config.Shell,
		TriggerID: o.config.TriggerID,
		WatchPath: o.config.WatchPath,
	})
	if !result.Passed || o.config.Verbose {
		preflight.PrintResults(o.out, result)
	}
	if !result.Passed {
		if result.Skippable() {
			return errors.New("preflight checks failed (use --skip-preflight to override)")
		}
		return errors.New("preflight checks failed")
	}
	for _, c := range result.Checks {
		if c.Warning {
			o.logger.Warn("preflight_warning", "check", c.Name, "message", c.Message)
		}
	}
	return nil
}

func (o *Orchestrator) shutdown() {
	o.notifier.Stopping()

	if o.metricsServer != nil {
		o.metricsServer.SetReady(false)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := o.metricsServer.Shutdown(ctx); err != nil {
			o.logger.Warn("metrics_server_shutdown_error", "error", err)
		}
	}
}

// ModeLabel returns the wait policy as a metric label value.
func (o *Orchestrator) ModeLabel() string {
	switch {
	case o.schedule != nil:
		return "schedule"
	case o.config.Interval > 0:
		return "interval"
	default:
		return "trigger_only"
	}
}

// ModeDescription describes the wait policy for humans.
func (o *Orchestrator) ModeDescription() string {
	switch {
	case o.schedule != nil:
		return "cron " + o.config.Schedule
	case o.config.Interval > 0:
		return "every " + o.config.Interval.String()
	default:
		return "trigger only"
	}
}

func (o *Orchestrator) metricsAddr() string {
	if o.metricsServer == nil {
		return ""
	}
	return o.metricsServer.Addr()
}

// Stats returns the run statistics.
func (o *Orchestrator) Stats() *stats.RunStats {
	return o.stats
}

// Rates returns the rolling run-rate tracker.
func (o *Orchestrator) Rates() *timeseries.RateTracker {
	return o.rates
}

// Registry returns the Prometheus registry holding the interlope metrics.
func (o *Orchestrator) Registry() *prometheus.Registry {
	return o.registry
}

// Reporter returns the diagnostic sink.
func (o *Orchestrator) Reporter() *logging.Reporter {
	return o.reporter
}

// Flag returns the interrupt flag shared by every trigger source.
func (o *Orchestrator) Flag() *trigger.Flag {
	return o.flag
}
