package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/randomizedcoder/interlope/internal/logging"
	"github.com/randomizedcoder/interlope/internal/metrics"
	"github.com/randomizedcoder/interlope/internal/process"
	"github.com/randomizedcoder/interlope/internal/scheduler"
	"github.com/randomizedcoder/interlope/internal/stats"
)

// summaryDiagnostics is how many recent failures the exit summary lists.
const summaryDiagnostics = 10

// Callback handlers run on the loop goroutine.

func (o *Orchestrator) onStateChange(oldState, newState scheduler.State) {
	o.collector.SetState(newState)
	o.logger.Debug("loop_state_change",
		"from", oldState.String(),
		"to", newState.String(),
	)
}

func (o *Orchestrator) onRunStart(iteration int64) {
	o.collector.RecordRunStart()
	o.logger.Debug("run_started", "iteration", iteration)
}

func (o *Orchestrator) onOutcome(iteration int64, outcome process.Outcome) {
	o.stats.RecordOutcome(outcome)
	o.collector.RecordOutcome(outcome)
	o.rates.Add(outcome.Failed())

	snap := o.stats.Snapshot()
	o.notifier.Status("runs=%d failures=%d last=%s exit=%d",
		snap.Runs, snap.Failures(), outcome.Kind, outcome.ExitCode)
}

func (o *Orchestrator) onWake(reason scheduler.WakeReason, waited time.Duration) {
	o.stats.RecordWake(reason)
	o.collector.RecordWake(reason)
	if reason == scheduler.WakeTrigger {
		o.logger.Debug("trigger_received",
			"signal", o.bridge.SignalName(),
			"waited", waited.String(),
			"received_total", o.bridge.Received(),
		)
	}
}

// printExitSummary prints a summary of the run.
func (o *Orchestrator) printExitSummary() {
	diags := o.reporter.Recent(summaryDiagnostics)
	lines := make([]string, 0, len(diags))
	for _, d := range diags {
		lines = append(lines, d.String())
	}

	signal := ""
	if o.bridge != nil {
		signal = o.bridge.SignalName()
	}

	fmt.Fprint(o.out, stats.FormatExitSummary(o.stats.Snapshot(), stats.SummaryConfig{
		Command:       o.config.Command,
		Mode:          o.ModeDescription(),
		TriggerSignal: signal,
		MetricsAddr:   o.metricsAddr(),
		Diagnostics:   lines,
	}))

	if o.config.Verbose {
		var b strings.Builder
		if err := metrics.WriteText(&b, o.registry); err != nil {
			o.logger.Warn("metrics_dump_failed", "error", err)
			return
		}
		fmt.Fprintf(o.out, "\nFinal metrics:\n%s", b.String())
	}
}

// Diagnostics returns the most recent reported failures, oldest first.
func (o *Orchestrator) Diagnostics(n int) []logging.Diagnostic {
	return o.reporter.Recent(n)
}
