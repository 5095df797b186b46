package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Flag names shared between BindFlags, ApplyFile and the usage printer.
const (
	FlagInterval      = "interval"
	FlagSignal        = "signal"
	FlagCron          = "cron"
	FlagShell         = "shell"
	FlagWatch         = "watch"
	FlagConfig        = "config"
	FlagLogFormat     = "log-format"
	FlagLogLevel      = "log-level"
	FlagVerbose       = "verbose"
	FlagMetrics       = "metrics"
	FlagTUI           = "tui"
	FlagSkipPreflight = "skip-preflight"
	FlagReportRate    = "report-rate"
	FlagReportBurst   = "report-burst"
)

// Flags holds raw flag values that need post-processing before they
// become part of a Config.
type Flags struct {
	IntervalMs int
}

// BindFlags registers all interlope flags on fs, writing into cfg.
// Interval is collected in milliseconds and converted by Finalize.
func BindFlags(fs *pflag.FlagSet, cfg *Config) *Flags {
	raw := &Flags{IntervalMs: int(cfg.Interval / time.Millisecond)}

	// Scheduling
	fs.IntVarP(&raw.IntervalMs, FlagInterval, "i", raw.IntervalMs, "Run the command every N milliseconds (0 = only on trigger)")
	fs.IntVarP(&cfg.TriggerID, FlagSignal, "s", cfg.TriggerID, "Reserved signal offset that triggers an immediate run")
	fs.StringVar(&cfg.Schedule, FlagCron, cfg.Schedule, `Cron schedule instead of -i (e.g. "*/5 * * * *" or "@every 30s")`)

	// Execution
	fs.StringVar(&cfg.Shell, FlagShell, cfg.Shell, "Shell used to run the command")
	fs.StringVar(&cfg.WatchPath, FlagWatch, cfg.WatchPath, "Also trigger a run whenever this file is written")
	fs.StringVar(&cfg.ConfigFile, FlagConfig, cfg.ConfigFile, "YAML config file (flags override file values)")

	// Observability
	fs.StringVar(&cfg.LogFormat, FlagLogFormat, cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, FlagLogLevel, cfg.LogLevel, `Log level: "debug", "info", "warn", "error"`)
	fs.BoolVarP(&cfg.Verbose, FlagVerbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.MetricsAddr, FlagMetrics, cfg.MetricsAddr, "Prometheus metrics address (empty = disabled)")
	fs.BoolVar(&cfg.TUIEnabled, FlagTUI, cfg.TUIEnabled, "Show a live terminal dashboard")

	// Diagnostics
	fs.BoolVar(&cfg.SkipPreflight, FlagSkipPreflight, cfg.SkipPreflight, "Skip preflight checks")
	fs.Float64Var(&cfg.ReportRate, FlagReportRate, cfg.ReportRate, "Max failure reports per second (0 = unlimited)")
	fs.IntVar(&cfg.ReportBurst, FlagReportBurst, cfg.ReportBurst, "Failure reports allowed in a burst")

	return raw
}

// Finalize converts raw flag values and positional arguments into the final
// Config. It returns user-input warnings: values that were downgraded to a
// safe default rather than rejected.
func Finalize(cfg *Config, raw *Flags, intervalSet bool, args []string) []string {
	var warnings []string

	if intervalSet {
		if raw.IntervalMs <= 0 {
			warnings = append(warnings, fmt.Sprintf(
				"interval must be positive (got %d ms), running on trigger only", raw.IntervalMs))
			cfg.Interval = 0
		} else {
			cfg.Interval = time.Duration(raw.IntervalMs) * time.Millisecond
		}
	}

	if len(args) > 0 {
		cfg.Command = strings.Join(args, " ")
	}

	return warnings
}

// PrintUsage writes categorized flag help, in the same order BindFlags
// registers them.
func PrintUsage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, `interlope - run a command on an interval or on demand via a signal

Usage:
  interlope [flags] [--] <command...>

Scheduling Flags:
`)
	printFlagCategory(w, fs, []string{FlagInterval, FlagSignal, FlagCron})

	fmt.Fprintf(w, "\nExecution:\n")
	printFlagCategory(w, fs, []string{FlagShell, FlagWatch, FlagConfig})

	fmt.Fprintf(w, "\nObservability:\n")
	printFlagCategory(w, fs, []string{FlagLogFormat, FlagLogLevel, FlagVerbose, FlagMetrics, FlagTUI})

	fmt.Fprintf(w, "\nDiagnostics:\n")
	printFlagCategory(w, fs, []string{FlagSkipPreflight, FlagReportRate, FlagReportBurst})

	fmt.Fprintf(w, `
Triggering a run:
  Send the reserved signal at offset -s to the process, e.g. for -s 1 on Linux:
    pkill -RTMIN+1 interlope
  Offsets count from glibc's SIGRTMIN (34). Offset 0 is kept by the Go
  runtime and is refused. musl's SIGRTMIN is 35, so with a musl pkill use
  -RTMIN+(n-1), or send the number directly: kill -35 <pid> for -s 1.

Examples:
  # Run "make" every 2 seconds, or immediately on SIGRTMIN+1
  interlope -i 2000 -s 1 make

  # Run only when triggered
  interlope -s 3 -- ./deploy.sh --fast

`)
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(w io.Writer, fs *pflag.FlagSet, names []string) {
	for _, name := range names {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		short := "    "
		if f.Shorthand != "" {
			short = "-" + f.Shorthand + ", "
		}
		fmt.Fprintf(w, "  %s--%s %s\n    \t%s", short, f.Name, flagType(f), f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" && f.DefValue != "[]" {
			fmt.Fprintf(w, " (default %s)", f.DefValue)
		}
		fmt.Fprintln(w)
	}
}

// flagType returns a type hint for the flag value.
func flagType(f *pflag.Flag) string {
	switch f.Value.Type() {
	case "bool":
		return ""
	case "int":
		return "int"
	case "float64":
		return "float"
	default:
		return "string"
	}
}
