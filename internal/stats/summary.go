package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	ruleHeavy = "═══════════════════════════════════════════════════════════════════════════════\n"
	ruleLight = "───────────────────────────────────────────────────────────────────────────────\n"
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// Command is the scheduled command string
	Command string

	// Mode describes the wait policy, e.g. "every 500ms" or "trigger only"
	Mode string

	// TriggerSignal names the trigger, e.g. "RTMIN+1"
	TriggerSignal string

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// Diagnostics are the most recent reported failures, oldest first
	Diagnostics []string
}

// FormatExitSummary formats run statistics for display at program exit.
func FormatExitSummary(snap *Snapshot, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(ruleHeavy)
	b.WriteString("                           interlope Exit Summary\n")
	b.WriteString(ruleHeavy + "\n")

	fmt.Fprintf(&b, "Command:                %s\n", cfg.Command)
	if cfg.Mode != "" {
		fmt.Fprintf(&b, "Mode:                   %s\n", cfg.Mode)
	}
	if cfg.TriggerSignal != "" {
		fmt.Fprintf(&b, "Trigger:                %s\n", cfg.TriggerSignal)
	}

	if snap == nil {
		b.WriteString("\n(no statistics collected)\n\n")
		b.WriteString(ruleHeavy)
		return b.String()
	}

	fmt.Fprintf(&b, "Run Duration:           %s\n\n", FormatDuration(snap.Elapsed))

	// Outcomes
	b.WriteString(ruleLight)
	b.WriteString("                                 Runs\n")
	b.WriteString(ruleLight + "\n")
	fmt.Fprintf(&b, "  Total:                %s\n", FormatNumber(snap.Runs))
	fmt.Fprintf(&b, "  Succeeded:            %s\n", FormatNumber(snap.Successes))
	fmt.Fprintf(&b, "  Failed:               %s (launch %d, child %d)\n",
		FormatNumber(snap.Failures()), snap.LaunchFailures, snap.ChildFailures)
	if snap.Runs > 0 {
		fmt.Fprintf(&b, "  Failure Rate:         %.2f%%\n", snap.FailureRate*100)
	}
	b.WriteString("\n")

	// Wake-ups
	fmt.Fprintf(&b, "  Wake-ups:             %d (trigger %d, interval %d, schedule %d)\n\n",
		snap.Wakes(), snap.TriggerWakes, snap.IntervalWakes, snap.ScheduleWakes)

	// Durations
	if snap.Runs > 0 {
		b.WriteString(ruleLight)
		b.WriteString("                             Run Durations\n")
		b.WriteString(ruleLight + "\n")
		fmt.Fprintf(&b, "  Min / Avg / Max:      %s / %s / %s\n",
			FormatMs(snap.MinDuration), FormatMs(snap.AvgDuration), FormatMs(snap.MaxDuration))
		fmt.Fprintf(&b, "  P50:                  %s\n", FormatMs(snap.P50))
		fmt.Fprintf(&b, "  P95:                  %s\n", FormatMs(snap.P95))
		fmt.Fprintf(&b, "  P99:                  %s\n\n", FormatMs(snap.P99))
	}

	// Exit codes
	if len(snap.ExitCodes) > 0 {
		b.WriteString(ruleLight)
		b.WriteString("                                Exit Codes\n")
		b.WriteString(ruleLight + "\n")

		// Sort exit codes for consistent output
		codes := make([]int, 0, len(snap.ExitCodes))
		for code := range snap.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		for _, code := range codes {
			fmt.Fprintf(&b, "  %3d %-18s %d\n", code, exitCodeLabel(code), snap.ExitCodes[code])
		}
		b.WriteString("\n")
	}

	if len(cfg.Diagnostics) > 0 {
		b.WriteString(ruleLight)
		b.WriteString("                           Recent Diagnostics\n")
		b.WriteString(ruleLight + "\n")
		for _, d := range cfg.Diagnostics {
			fmt.Fprintf(&b, "  %s\n", d)
		}
		b.WriteString("\n")
	}

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString(ruleHeavy)

	return b.String()
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 126:
		return "(not executable)"
	case 127:
		return "(not found)"
	case 130:
		return "(SIGINT)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// FormatAgo formats the time since t, e.g. "3s ago". Zero t is "never".
func FormatAgo(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	return d.Truncate(time.Second).String() + " ago"
}
