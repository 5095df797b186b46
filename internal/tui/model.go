package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/interlope/internal/logging"
	"github.com/randomizedcoder/interlope/internal/scheduler"
	"github.com/randomizedcoder/interlope/internal/stats"
	"github.com/randomizedcoder/interlope/internal/timeseries"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// =============================================================================
// Model
// =============================================================================

// Model represents the TUI state.
type Model struct {
	command       string
	mode          string
	triggerSignal string
	metricsAddr   string

	snapshot    *stats.Snapshot
	rates       *timeseries.Rates
	state       scheduler.State
	diagnostics []logging.Diagnostic
	startTime   time.Time
	lastUpdate  time.Time
	showDiag    bool
	triggered   int

	width  int
	height int

	statsSource StatsSource
	ratesSource RatesSource
	stateSource func() scheduler.State
	diagSource  DiagnosticsSource
	trigger     func()

	quitting bool
}

// StatsSource provides run statistics.
type StatsSource interface {
	Snapshot() *stats.Snapshot
}

// RatesSource provides rolling run rates.
type RatesSource interface {
	Rates() timeseries.Rates
}

// DiagnosticsSource provides recent failure reports.
type DiagnosticsSource interface {
	Recent(n int) []logging.Diagnostic
}

// Config holds TUI configuration.
type Config struct {
	Command       string
	Mode          string
	TriggerSignal string
	MetricsAddr   string

	StatsSource       StatsSource
	RatesSource       RatesSource
	StateSource       func() scheduler.State
	DiagnosticsSource DiagnosticsSource

	// Trigger, if set, is bound to the "t" key and wakes the loop the same
	// way the trigger signal does.
	Trigger func()
}

// maxDiagnostics is how many recent diagnostics the dashboard shows.
const maxDiagnostics = 8

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		command:       cfg.Command,
		mode:          cfg.Mode,
		triggerSignal: cfg.TriggerSignal,
		metricsAddr:   cfg.MetricsAddr,
		statsSource:   cfg.StatsSource,
		ratesSource:   cfg.RatesSource,
		stateSource:   cfg.StateSource,
		diagSource:    cfg.DiagnosticsSource,
		trigger:       cfg.Trigger,
		showDiag:      true,
		startTime:     time.Now(),
		lastUpdate:    time.Now(),
		width:         80,
		height:        24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "t":
			if m.trigger != nil {
				m.trigger()
				m.triggered++
			}
			return m, nil
		case "d":
			m.showDiag = !m.showDiag
			return m, nil
		case "r":
			return m, tickCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.refresh()
		return m, tickCmd()
	}

	return m, nil
}

func (m *Model) refresh() {
	if m.statsSource != nil {
		m.snapshot = m.statsSource.Snapshot()
	}
	if m.ratesSource != nil {
		r := m.ratesSource.Rates()
		m.rates = &r
	}
	if m.stateSource != nil {
		m.state = m.stateSource()
	}
	if m.diagSource != nil {
		m.diagnostics = m.diagSource.Recent(maxDiagnostics)
	}
	m.lastUpdate = time.Now()
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the dashboard started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// State returns the last observed loop state.
func (m Model) State() scheduler.State {
	return m.state
}

// Quitting reports whether the user asked to quit.
func (m Model) Quitting() bool {
	return m.quitting
}

// SuccessRatio returns successes / runs, or 0 with no runs.
func (m Model) SuccessRatio() float64 {
	if m.snapshot == nil || m.snapshot.Runs == 0 {
		return 0
	}
	return float64(m.snapshot.Successes) / float64(m.snapshot.Runs)
}
