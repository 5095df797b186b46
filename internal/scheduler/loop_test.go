package scheduler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/randomizedcoder/interlope/internal/logging"
	"github.com/randomizedcoder/interlope/internal/process"
	"github.com/randomizedcoder/interlope/internal/trigger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// Fake runner for testing
// =============================================================================

type invocation struct {
	start time.Time
	end   time.Time
}

// fakeRunner records invocations and checks they never overlap.
type fakeRunner struct {
	mu       sync.Mutex
	calls    []invocation
	commands []string
	active   atomic.Int32
	overlap  atomic.Bool

	duration time.Duration
	outcome  process.Outcome
	block    chan struct{} // when set, each run waits for a receive
}

func (f *fakeRunner) Run(ctx context.Context, command string) process.Outcome {
	if f.active.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.active.Add(-1)

	start := time.Now()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	if f.duration > 0 {
		time.Sleep(f.duration)
	}

	f.mu.Lock()
	f.calls = append(f.calls, invocation{start: start, end: time.Now()})
	f.commands = append(f.commands, command)
	f.mu.Unlock()

	out := f.outcome
	out.Started = start
	out.Duration = time.Since(start)
	return out
}

func (f *fakeRunner) Calls() []invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]invocation(nil), f.calls...)
}

func (f *fakeRunner) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startLoop runs l in the background and returns a stop function that
// cancels it and waits for Run to return.
func startLoop(t *testing.T, l *Loop) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	var once sync.Once
	var err error
	stop = func() error {
		once.Do(func() {
			cancel()
			select {
			case err = <-errCh:
			case <-time.After(5 * time.Second):
				t.Fatal("loop did not stop")
			}
		})
		return err
	}
	t.Cleanup(func() { _ = stop() })
	return stop
}

// =============================================================================
// Tests: State
// =============================================================================

func TestState_String(t *testing.T) {
	testCases := []struct {
		state    State
		expected string
	}{
		{StateIdle, "idle"},
		{StateRunning, "running"},
		{StateWaiting, "waiting"},
		{StateStopped, "stopped"},
		{State(99), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			require.Equal(t, tc.expected, tc.state.String())
		})
	}
}

func TestWakeReason_String(t *testing.T) {
	require.Equal(t, "trigger", WakeTrigger.String())
	require.Equal(t, "interval", WakeInterval.String())
	require.Equal(t, "schedule", WakeSchedule.String())
	require.Equal(t, "unknown", WakeReason(7).String())
}

// =============================================================================
// Tests: Loop
// =============================================================================

func TestLoop_InitialState(t *testing.T) {
	l := New(Config{Command: "true", Runner: &fakeRunner{}})
	require.Equal(t, StateIdle, l.State())
	require.Zero(t, l.Iterations())
}

func TestLoop_PassesCommand(t *testing.T) {
	r := &fakeRunner{}
	l := New(Config{Command: "echo a  b", Runner: r, Logger: newTestLogger()})
	stop := startLoop(t, l)

	require.Eventually(t, func() bool { return r.Count() == 1 }, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, stop(), context.Canceled)

	r.mu.Lock()
	defer r.mu.Unlock()
	require.Equal(t, []string{"echo a  b"}, r.commands)
}

func TestLoop_IntervalSpacing(t *testing.T) {
	const interval = 40 * time.Millisecond
	r := &fakeRunner{}
	l := New(Config{Command: "true", Interval: interval, Runner: r, Logger: newTestLogger()})
	stop := startLoop(t, l)

	require.Eventually(t, func() bool { return r.Count() >= 4 }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, ignoreCanceled(stop()))

	calls := r.Calls()
	for i := 1; i < len(calls); i++ {
		gap := calls[i].start.Sub(calls[i-1].end)
		require.GreaterOrEqual(t, gap, interval, "invocation %d started early", i)
		require.Less(t, gap, interval+time.Second, "invocation %d started late", i)
	}
}

func TestLoop_TriggerPreemptsInterval(t *testing.T) {
	r := &fakeRunner{}
	flag := trigger.NewFlag()

	var wakes []WakeReason
	var wakeMu sync.Mutex
	l := New(Config{
		Command:  "true",
		Interval: time.Hour,
		Runner:   r,
		Flag:     flag,
		Logger:   newTestLogger(),
		Callbacks: Callbacks{
			OnWake: func(reason WakeReason, _ time.Duration) {
				wakeMu.Lock()
				wakes = append(wakes, reason)
				wakeMu.Unlock()
			},
		},
	})
	startLoop(t, l)

	require.Eventually(t, func() bool { return l.State() == StateWaiting }, time.Second, time.Millisecond)
	flag.Set()

	require.Eventually(t, func() bool { return r.Count() == 2 }, 2*time.Second, time.Millisecond)
	wakeMu.Lock()
	require.Equal(t, []WakeReason{WakeTrigger}, wakes)
	wakeMu.Unlock()
}

func TestLoop_TriggerDuringRunDoesNotOverlap(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{})}
	flag := trigger.NewFlag()
	l := New(Config{Command: "sleep", Interval: time.Hour, Runner: r, Flag: flag, Logger: newTestLogger()})
	startLoop(t, l)

	require.Eventually(t, func() bool { return l.State() == StateRunning }, time.Second, time.Millisecond)
	flag.Set()
	time.Sleep(20 * time.Millisecond)
	require.Zero(t, r.Count(), "second run must wait for the first")

	r.block <- struct{}{} // finish run 1; the pending trigger wakes at once
	r.block <- struct{}{} // finish run 2

	require.Eventually(t, func() bool { return r.Count() == 2 }, 2*time.Second, time.Millisecond)
	calls := r.Calls()
	require.False(t, calls[1].start.Before(calls[0].end))
	require.False(t, r.overlap.Load())
}

func TestLoop_TriggerOnlyNeverRepeatsWithoutTrigger(t *testing.T) {
	r := &fakeRunner{}
	flag := trigger.NewFlag()
	l := New(Config{Command: "true", Runner: r, Flag: flag, Logger: newTestLogger()})
	startLoop(t, l)

	require.Eventually(t, func() bool { return r.Count() == 1 }, time.Second, time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, 1, r.Count())
	require.Equal(t, StateWaiting, l.State())

	flag.Set()
	require.Eventually(t, func() bool { return r.Count() == 2 }, time.Second, time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 2, r.Count())
}

func TestLoop_BackToBackTriggersWakeOnce(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{})}
	flag := trigger.NewFlag()
	l := New(Config{Command: "true", Runner: r, Flag: flag, Logger: newTestLogger()})
	startLoop(t, l)

	require.Eventually(t, func() bool { return l.State() == StateRunning }, time.Second, time.Millisecond)
	flag.Set()
	flag.Set()
	r.block <- struct{}{}

	// One extra run for both triggers.
	r.block <- struct{}{}
	require.Eventually(t, func() bool { return r.Count() == 2 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return l.State() == StateWaiting }, time.Second, time.Millisecond)

	select {
	case r.block <- struct{}{}:
		t.Fatal("a third run started without a new trigger")
	case <-time.After(100 * time.Millisecond):
	}
	require.Equal(t, 2, r.Count())
	require.False(t, flag.IsSet())
}

func TestLoop_Schedule(t *testing.T) {
	r := &fakeRunner{}
	var reasons []WakeReason
	var mu sync.Mutex
	l := New(Config{
		Command:  "true",
		Interval: time.Hour, // ignored when a schedule is set
		Schedule: everySchedule(20 * time.Millisecond),
		Runner:   r,
		Logger:   newTestLogger(),
		Callbacks: Callbacks{
			OnWake: func(reason WakeReason, _ time.Duration) {
				mu.Lock()
				reasons = append(reasons, reason)
				mu.Unlock()
			},
		},
	})
	startLoop(t, l)

	require.Eventually(t, func() bool { return r.Count() >= 3 }, 2*time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, reasons)
	for _, reason := range reasons {
		require.Equal(t, WakeSchedule, reason)
	}
}

func TestLoop_ExhaustedScheduleWaitsForTrigger(t *testing.T) {
	r := &fakeRunner{}
	flag := trigger.NewFlag()
	l := New(Config{Command: "true", Schedule: neverSchedule{}, Runner: r, Flag: flag, Logger: newTestLogger()})
	startLoop(t, l)

	require.Eventually(t, func() bool { return r.Count() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, r.Count())

	flag.Set()
	require.Eventually(t, func() bool { return r.Count() == 2 }, time.Second, time.Millisecond)
}

func TestLoop_FailuresAreReportedAndLoopContinues(t *testing.T) {
	testCases := []struct {
		name      string
		outcome   process.Outcome
		wantEvent string
		wantLevel string
	}{
		{
			name:      "child_failure",
			outcome:   process.Outcome{Kind: process.ChildFailure, ExitCode: 1, Err: errors.New("exit status 1")},
			wantEvent: "command_failed",
			wantLevel: "WARN",
		},
		{
			name:      "launch_failure",
			outcome:   process.Outcome{Kind: process.LaunchFailure, ExitCode: 127, Err: errors.New("exit status 127")},
			wantEvent: "command_launch_failed",
			wantLevel: "ERROR",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf syncBuffer
			logger := logging.NewLoggerWithWriter(&buf, "text", "info")
			reporter := logging.NewReporter(logger, 0, 0)

			r := &fakeRunner{outcome: tc.outcome}
			l := New(Config{Command: "false", Interval: 5 * time.Millisecond, Runner: r, Reporter: reporter, Logger: logger})
			stop := startLoop(t, l)

			require.Eventually(t, func() bool { return r.Count() >= 3 }, 2*time.Second, time.Millisecond)
			require.NoError(t, ignoreCanceled(stop()))

			require.GreaterOrEqual(t, reporter.Total(), int64(3))
			out := buf.String()
			require.Contains(t, out, tc.wantEvent)
			require.Contains(t, out, "level="+tc.wantLevel)
			require.Contains(t, out, "exit_code="+strings.TrimPrefix(tc.outcome.Err.Error(), "exit status "))
		})
	}
}

func TestLoop_SuccessIsNotReported(t *testing.T) {
	var buf syncBuffer
	logger := logging.NewLoggerWithWriter(&buf, "text", "info")
	reporter := logging.NewReporter(logger, 0, 0)

	r := &fakeRunner{}
	l := New(Config{Command: "true", Interval: 5 * time.Millisecond, Runner: r, Reporter: reporter, Logger: logger})
	stop := startLoop(t, l)

	require.Eventually(t, func() bool { return r.Count() >= 3 }, 2*time.Second, time.Millisecond)
	require.NoError(t, ignoreCanceled(stop()))
	require.Zero(t, reporter.Total())
}

func TestLoop_Callbacks(t *testing.T) {
	var mu sync.Mutex
	var events []string
	record := func(s string) {
		mu.Lock()
		events = append(events, s)
		mu.Unlock()
	}

	flag := trigger.NewFlag()
	r := &fakeRunner{}
	l := New(Config{
		Command: "true",
		Runner:  r,
		Flag:    flag,
		Logger:  newTestLogger(),
		Callbacks: Callbacks{
			OnStateChange: func(oldState, newState State) { record(oldState.String() + "->" + newState.String()) },
			OnRunStart:    func(n int64) { record("start") },
			OnOutcome:     func(n int64, o process.Outcome) { record("outcome:" + o.Kind.String()) },
			OnWake:        func(reason WakeReason, _ time.Duration) { record("wake:" + reason.String()) },
		},
	})
	stop := startLoop(t, l)

	require.Eventually(t, func() bool { return l.State() == StateWaiting }, time.Second, time.Millisecond)
	flag.Set()
	require.Eventually(t, func() bool { return r.Count() == 2 && l.State() == StateWaiting }, time.Second, time.Millisecond)
	require.ErrorIs(t, stop(), context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{
		"idle->running",
		"start",
		"outcome:success",
		"running->waiting",
		"wake:trigger",
		"waiting->running",
		"start",
		"outcome:success",
		"running->waiting",
		"waiting->stopped",
	}, events)
	require.Equal(t, StateStopped, l.State())
	require.Equal(t, int64(2), l.Iterations())
}

func TestLoop_CancelWhileRunning(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{})}
	l := New(Config{Command: "sleep", Runner: r, Logger: newTestLogger()})
	stop := startLoop(t, l)

	require.Eventually(t, func() bool { return l.State() == StateRunning }, time.Second, time.Millisecond)
	require.ErrorIs(t, stop(), context.Canceled)
	require.Equal(t, StateStopped, l.State())
}

func TestLoop_AlreadyCancelled(t *testing.T) {
	r := &fakeRunner{}
	l := New(Config{Command: "true", Runner: r, Logger: newTestLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, l.Run(ctx), context.Canceled)
	require.Zero(t, r.Count())
}

func TestLoop_NextTimeout(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name        string
		interval    time.Duration
		schedule    interface{ Next(time.Time) time.Time }
		wantTimeout time.Duration
		wantReason  WakeReason
	}{
		{"trigger_only", 0, nil, 0, WakeTrigger},
		{"interval", 500 * time.Millisecond, nil, 500 * time.Millisecond, WakeInterval},
		{"schedule", time.Second, everySchedule(time.Minute), time.Minute, WakeSchedule},
		{"schedule_exhausted", 0, neverSchedule{}, 0, WakeSchedule},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{Interval: tc.interval, Runner: &fakeRunner{}}
			if tc.schedule != nil {
				cfg.Schedule = tc.schedule
			}
			d, reason := New(cfg).nextTimeout(now)
			require.Equal(t, tc.wantTimeout, d)
			require.Equal(t, tc.wantReason, reason)
		})
	}
}

// =============================================================================
// Helpers
// =============================================================================

type everySchedule time.Duration

func (s everySchedule) Next(t time.Time) time.Time { return t.Add(time.Duration(s)) }

type neverSchedule struct{}

func (neverSchedule) Next(time.Time) time.Time { return time.Time{} }

// syncBuffer is a bytes.Buffer safe for the loop and the test to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
