package tui

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/interlope/internal/stats"
	"github.com/randomizedcoder/interlope/internal/timeseries"
)

// =============================================================================
// Main View Rendering
// =============================================================================

func (m Model) renderDashboard() string {
	sections := []string{
		m.renderHeader(),
		m.renderStatus(),
	}

	if m.snapshot != nil && m.snapshot.Runs > 0 {
		sections = append(sections, m.renderRunStats())
		sections = append(sections, m.renderDurationStats())
	}

	if m.showDiag && len(m.diagnostics) > 0 {
		sections = append(sections, m.renderDiagnostics())
	}

	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" interlope │ %s │ Mode: %s │ Elapsed: %s ",
		StateLabel(m.state),
		m.mode,
		stats.FormatDuration(m.Elapsed()),
	)
	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Status
// =============================================================================

func (m Model) renderStatus() string {
	rows := []string{
		RenderKeyValue("Command", truncate(m.command, m.width-26)),
		RenderKeyValue("Trigger", m.triggerSignal),
	}

	if m.snapshot != nil && m.snapshot.Runs > 0 {
		s := m.snapshot
		last := lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Last run:"),
			OutcomeStyle(s.LastKind).Render(fmt.Sprintf("%s (exit %d)", s.LastKind, s.LastExitCode)),
			mutedStyle.Render(fmt.Sprintf("  %s, took %s", stats.FormatAgo(s.LastRunAt, time.Now()), stats.FormatMs(s.LastDuration))),
		)
		rows = append(rows, last)
	} else {
		rows = append(rows, RenderKeyValue("Last run", "none yet"))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Status")}, rows...)...,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Runs
// =============================================================================

func (m Model) renderRunStats() string {
	s := m.snapshot

	barWidth := m.width - 34
	if barWidth < 20 {
		barWidth = 20
	}

	rows := []string{
		RenderKeyValue("Runs", stats.FormatNumber(s.Runs)),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Succeeded:"),
			RenderRatioBar(m.SuccessRatio(), barWidth),
		),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Failures:"),
			GetFailureRateStyle(s.FailureRate).Render(fmt.Sprintf("%d", s.Failures())),
			mutedStyle.Render(fmt.Sprintf("  (launch %d, command %d)", s.LaunchFailures, s.ChildFailures)),
		),
		RenderKeyValue("Wake-ups", fmt.Sprintf("trigger %d · interval %d · schedule %d",
			s.TriggerWakes, s.IntervalWakes, s.ScheduleWakes)),
	}
	if r := m.rates; r != nil {
		rows = append(rows, RenderKeyValue("Runs/min", fmt.Sprintf("%.1f · %.1f · %.1f  (1m · 5m · 15m)",
			r.Last1m.Runs, r.Last5m.Runs, r.Last15m.Runs)))
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Fails/min:"),
			GetFailureRateStyle(windowFailureRate(r.Last1m)).Render(fmt.Sprintf("%.1f", r.Last1m.Failures)),
			mutedStyle.Render(fmt.Sprintf(" · %.1f · %.1f", r.Last5m.Failures, r.Last15m.Failures)),
		))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Runs")}, rows...)...,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

func (m Model) renderDurationStats() string {
	s := m.snapshot
	rows := []string{
		RenderKeyValue("P50 (median)", stats.FormatMs(s.P50)),
		RenderKeyValue("P95", stats.FormatMs(s.P95)),
		RenderKeyValue("P99", stats.FormatMs(s.P99)),
		RenderKeyValue("Max", stats.FormatMs(s.MaxDuration)),
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Run Duration")}, rows...)...,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Diagnostics
// =============================================================================

func (m Model) renderDiagnostics() string {
	rows := make([]string, 0, len(m.diagnostics))
	for _, d := range m.diagnostics {
		style := valueWarnStyle
		if d.Level >= slog.LevelError {
			style = valueBadStyle
		}
		rows = append(rows, style.Render(truncate(d.String(), m.width-6)))
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Recent Failures")}, rows...)...,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{"q: quit"}
	if m.trigger != nil {
		shortcuts = append(shortcuts, "t: trigger now")
	}
	shortcuts = append(shortcuts, "d: toggle failures", "r: refresh")

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	right := ""
	if m.metricsAddr != "" {
		right = dimStyle.Render("Metrics: http://" + m.metricsAddr + "/metrics")
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			right,
		),
	)
}

// windowFailureRate is failures / runs within one window, 0 when idle.
func windowFailureRate(w timeseries.Window) float64 {
	if w.Runs <= 0 {
		return 0
	}
	return w.Failures / w.Runs
}

// truncate shortens s to n runes with a trailing ellipsis.
func truncate(s string, n int) string {
	if n < 4 {
		n = 4
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
