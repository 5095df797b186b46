package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/randomizedcoder/interlope/internal/logging"
	"github.com/randomizedcoder/interlope/internal/process"
	"github.com/randomizedcoder/interlope/internal/trigger"
)

// Callbacks contains optional callback functions for loop events.
// They run on the loop goroutine and must not block.
type Callbacks struct {
	// OnStateChange is called when the loop state changes.
	OnStateChange func(oldState, newState State)

	// OnRunStart is called before each invocation.
	OnRunStart func(iteration int64)

	// OnOutcome is called after each invocation.
	OnOutcome func(iteration int64, outcome process.Outcome)

	// OnWake is called when the loop leaves Waiting.
	OnWake func(reason WakeReason, waited time.Duration)
}

// Config holds configuration for creating a new Loop.
type Config struct {
	Command  string
	Interval time.Duration // 0 = no periodic wake-up
	Schedule cron.Schedule // nil = none; takes precedence over Interval

	Runner    process.Runner
	Flag      *trigger.Flag
	Reporter  *logging.Reporter
	Logger    *slog.Logger
	Callbacks Callbacks
}

// Loop runs the command, then waits, forever. Only one invocation is ever
// in flight.
type Loop struct {
	command   string
	interval  time.Duration
	schedule  cron.Schedule
	runner    process.Runner
	flag      *trigger.Flag
	reporter  *logging.Reporter
	logger    *slog.Logger
	callbacks Callbacks

	state   State
	stateMu sync.RWMutex

	iterations atomic.Int64
}

// New creates a new Loop with the given configuration.
func New(cfg Config) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = logging.NewReporter(logger, 0, 0)
	}
	flag := cfg.Flag
	if flag == nil {
		flag = trigger.NewFlag()
	}

	return &Loop{
		command:   cfg.Command,
		interval:  cfg.Interval,
		schedule:  cfg.Schedule,
		runner:    cfg.Runner,
		flag:      flag,
		reporter:  reporter,
		logger:    logger,
		callbacks: cfg.Callbacks,
		state:     StateIdle,
	}
}

// Run alternates between Running and Waiting until ctx is cancelled.
// Command failures are reported and never end the loop.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Debug("loop_starting",
		"command", l.command,
		"interval", l.interval.String(),
		"mode", l.mode(),
	)

	for {
		if ctx.Err() != nil {
			return l.stop(ctx)
		}

		l.setState(StateRunning)
		n := l.iterations.Add(1)
		if l.callbacks.OnRunStart != nil {
			l.callbacks.OnRunStart(n)
		}

		outcome := l.runner.Run(ctx, l.command)
		if ctx.Err() != nil {
			// Killed by our own cancellation; not the command's fault.
			return l.stop(ctx)
		}
		l.report(ctx, n, outcome)
		if l.callbacks.OnOutcome != nil {
			l.callbacks.OnOutcome(n, outcome)
		}

		l.setState(StateWaiting)
		reason, waited, err := l.wait(ctx)
		if err != nil {
			return l.stop(ctx)
		}
		l.flag.Clear()

		l.logger.Debug("loop_wake",
			"reason", reason.String(),
			"waited", waited.String(),
		)
		if l.callbacks.OnWake != nil {
			l.callbacks.OnWake(reason, waited)
		}
	}
}

// wait blocks until the next wake-up. With neither interval nor schedule it
// blocks on the flag alone: no timer, no polling.
func (l *Loop) wait(ctx context.Context) (WakeReason, time.Duration, error) {
	start := time.Now()
	timeout, reason := l.nextTimeout(start)

	fired, err := l.flag.Wait(ctx, timeout)
	waited := time.Since(start)
	if err != nil {
		return 0, waited, err
	}
	if fired {
		return WakeTrigger, waited, nil
	}
	return reason, waited, nil
}

// nextTimeout returns the wait duration and the reason used if it elapses.
// A zero duration means wait for the trigger only.
func (l *Loop) nextTimeout(now time.Time) (time.Duration, WakeReason) {
	if l.schedule != nil {
		next := l.schedule.Next(now)
		if next.IsZero() {
			// Schedule never fires again.
			return 0, WakeSchedule
		}
		d := next.Sub(now)
		if d <= 0 {
			d = time.Nanosecond
		}
		return d, WakeSchedule
	}
	if l.interval > 0 {
		return l.interval, WakeInterval
	}
	return 0, WakeTrigger
}

// report sends failed outcomes to the reporter. Launch failures are errors,
// child failures warnings.
func (l *Loop) report(ctx context.Context, n int64, o process.Outcome) {
	switch o.Kind {
	case process.Success:
		l.logger.Debug("command_succeeded",
			"iteration", n,
			"duration", o.Duration.String(),
		)
	case process.LaunchFailure:
		l.reporter.Report(ctx, slog.LevelError, "command_launch_failed",
			"iteration", n,
			"run_id", o.RunID,
			"exit_code", o.ExitCode,
			"command", l.command,
			"error", errString(o.Err),
		)
	default:
		l.reporter.Report(ctx, slog.LevelWarn, "command_failed",
			"iteration", n,
			"run_id", o.RunID,
			"exit_code", o.ExitCode,
			"command", l.command,
			"duration", o.Duration.String(),
		)
	}
}

func (l *Loop) stop(ctx context.Context) error {
	l.setState(StateStopped)
	l.logger.Debug("loop_stopped", "iterations", l.iterations.Load())
	return ctx.Err()
}

func (l *Loop) mode() string {
	switch {
	case l.schedule != nil:
		return "schedule"
	case l.interval > 0:
		return "interval"
	default:
		return "trigger_only"
	}
}

// State returns the current state of the loop.
func (l *Loop) State() State {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.state
}

// Iterations returns how many times the command was started.
func (l *Loop) Iterations() int64 {
	return l.iterations.Load()
}

// setState updates the state and calls the callback if registered.
func (l *Loop) setState(newState State) {
	l.stateMu.Lock()
	oldState := l.state
	l.state = newState
	l.stateMu.Unlock()

	if l.callbacks.OnStateChange != nil && oldState != newState {
		l.callbacks.OnStateChange(oldState, newState)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
