package stats

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Table-Driven Tests: Formatting Functions
// =============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{"zero", 0, "00:00:00"},
		{"one second", time.Second, "00:00:01"},
		{"one hour", time.Hour, "01:00:00"},
		{"mixed", 2*time.Hour + 30*time.Minute + 45*time.Second, "02:30:45"},
		{"sub-second", 500 * time.Millisecond, "00:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDuration(tt.duration); got != tt.want {
				t.Errorf("FormatDuration(%v) = %q, want %q", tt.duration, got, tt.want)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1500, "1.5K"},
		{1000000, "1.0M"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatNumber(tt.n); got != tt.want {
				t.Errorf("FormatNumber(%d) = %q, want %q", tt.n, got, tt.want)
			}
		})
	}
}

func TestFormatMs(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{"zero", 0, "0 ms"},
		{"100 ms", 100 * time.Millisecond, "100 ms"},
		{"1 second", time.Second, "1000 ms"},
		{"sub-ms", 500 * time.Microsecond, "500 µs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatMs(tt.duration); got != tt.want {
				t.Errorf("FormatMs(%v) = %q, want %q", tt.duration, got, tt.want)
			}
		})
	}
}

func TestFormatAgo(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if got := FormatAgo(time.Time{}, now); got != "never" {
		t.Errorf("FormatAgo(zero) = %q, want never", got)
	}
	if got := FormatAgo(now.Add(-3500*time.Millisecond), now); got != "3s ago" {
		t.Errorf("FormatAgo(-3.5s) = %q, want 3s ago", got)
	}
	if got := FormatAgo(now.Add(time.Second), now); got != "0s ago" {
		t.Errorf("FormatAgo(future) = %q, want 0s ago", got)
	}
}

func TestExitCodeLabel(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "(clean)"},
		{1, "(error)"},
		{126, "(not executable)"},
		{127, "(not found)"},
		{137, "(SIGKILL)"},
		{143, "(SIGTERM)"},
		{2, ""},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("code_%d", tt.code), func(t *testing.T) {
			if got := exitCodeLabel(tt.code); got != tt.want {
				t.Errorf("exitCodeLabel(%d) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Tests: FormatExitSummary
// =============================================================================

func TestFormatExitSummary_NilSnapshot(t *testing.T) {
	out := FormatExitSummary(nil, SummaryConfig{Command: "true", Mode: "trigger only"})

	for _, want := range []string{"interlope Exit Summary", "Command:                true", "trigger only", "no statistics"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestFormatExitSummary_WithRuns(t *testing.T) {
	snap := &Snapshot{
		Elapsed:        90 * time.Second,
		Runs:           10,
		Successes:      7,
		LaunchFailures: 1,
		ChildFailures:  2,
		FailureRate:    0.3,
		TriggerWakes:   4,
		IntervalWakes:  5,
		MinDuration:    time.Millisecond,
		AvgDuration:    5 * time.Millisecond,
		MaxDuration:    20 * time.Millisecond,
		P50:            4 * time.Millisecond,
		P95:            18 * time.Millisecond,
		P99:            20 * time.Millisecond,
		ExitCodes:      map[int]int64{0: 7, 1: 2, 127: 1},
	}
	cfg := SummaryConfig{
		Command:       "make test",
		Mode:          "every 500ms",
		TriggerSignal: "RTMIN+1",
		MetricsAddr:   "127.0.0.1:9090",
		Diagnostics:   []string{"12:00:00.000 WARN command_failed exit_code=1"},
	}

	out := FormatExitSummary(snap, cfg)

	for _, want := range []string{
		"Run Duration:           00:01:30",
		"Failed:               3 (launch 1, child 2)",
		"Failure Rate:         30.00%",
		"Wake-ups:             9 (trigger 4, interval 5, schedule 0)",
		"P95:                  18 ms",
		"(not found)",
		"RTMIN+1",
		"command_failed exit_code=1",
		"http://127.0.0.1:9090/metrics",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}

	// Exit codes are sorted.
	if strings.Index(out, "  0 (clean)") > strings.Index(out, "127 (not found)") {
		t.Error("exit codes should be sorted ascending")
	}
}

func TestFormatExitSummary_NoRunsOmitsDurations(t *testing.T) {
	out := FormatExitSummary(&Snapshot{ExitCodes: map[int]int64{}}, SummaryConfig{Command: "true"})
	if strings.Contains(out, "Run Durations") {
		t.Error("duration section should be omitted without runs")
	}
	if strings.Contains(out, "Failure Rate") {
		t.Error("failure rate should be omitted without runs")
	}
}

func BenchmarkFormatExitSummary(b *testing.B) {
	snap := &Snapshot{Runs: 1000, Successes: 990, ChildFailures: 10, ExitCodes: map[int]int64{0: 990, 1: 10}}
	cfg := SummaryConfig{Command: "true"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = FormatExitSummary(snap, cfg)
	}
}
