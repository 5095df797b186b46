// Package preflight provides startup validation checks.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/randomizedcoder/interlope/internal/process"
	"github.com/randomizedcoder/interlope/internal/trigger"
)

// Each run holds the shell, the command and its stdio, plus our own signal
// and watch descriptors.
const (
	minFileDescriptors = 64
	minProcesses       = 8
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options selects what RunAll checks.
type Options struct {
	Shell     string
	TriggerID int
	WatchPath string // empty = no watch check
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// Failed returns the checks that did not pass.
func (r *Result) Failed() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

// Skippable reports whether every failed check is one --skip-preflight can
// bypass. The shell and the trigger signal are required either way.
func (r *Result) Skippable() bool {
	failed := r.Failed()
	if len(failed) == 0 {
		return false
	}
	for _, c := range failed {
		if c.Name == "shell" || c.Name == "trigger_signal" {
			return false
		}
	}
	return true
}

// RunAll executes all preflight checks. Only the shell, trigger and watch
// checks can fail; resource limits are warnings.
func RunAll(ctx context.Context, opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, 5),
		Passed: true,
	}
	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkShell(ctx, opts.Shell))
	add(checkTrigger(opts.TriggerID))
	if opts.WatchPath != "" {
		add(checkWatchPath(opts.WatchPath))
	}
	add(checkFileDescriptors())
	add(checkProcessLimit())

	return result
}

// checkShell verifies commands can be run at all.
func checkShell(ctx context.Context, shell string) Check {
	if err := process.ShellUsable(ctx, shell); err != nil {
		return Check{
			Name:    "shell",
			Passed:  false,
			Message: err.Error(),
		}
	}
	return Check{
		Name:    "shell",
		Passed:  true,
		Message: fmt.Sprintf("%s runs commands", shell),
	}
}

// checkTrigger verifies the trigger offset selects a reserved signal.
func checkTrigger(triggerID int) Check {
	table, err := trigger.NewTable(triggerID, trigger.Reserved())
	if err != nil {
		return Check{
			Name:    "trigger_signal",
			Passed:  false,
			Message: fmt.Sprintf("%v (reserved range %s)", err, trigger.ReservedName()),
		}
	}
	entry, _ := table.Trigger()
	return Check{
		Name:    "trigger_signal",
		Passed:  true,
		Message: fmt.Sprintf("offset %d = %v, %d others ignored", triggerID, entry.Signal, len(table)-1),
	}
}

// checkWatchPath verifies the watched file's directory exists.
func checkWatchPath(path string) Check {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return Check{
			Name:    "watch_path",
			Passed:  false,
			Message: fmt.Sprintf("directory %s not accessible", dir),
		}
	}
	return Check{
		Name:    "watch_path",
		Passed:  true,
		Message: fmt.Sprintf("watching %s", path),
	}
}

// checkProcessLimit warns when few process slots remain for the shell and
// its children.
func checkProcessLimit() Check {
	// syscall does not export RLIMIT_NPROC; read the soft limit from /proc.
	data, err := os.ReadFile("/proc/self/limits")
	if err != nil {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	actual := parseMaxProcesses(string(data))
	if actual == 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	return Check{
		Name:     "process_limit",
		Required: minProcesses,
		Actual:   actual,
		Passed:   true,
		Warning:  actual < minProcesses,
		Message:  fmt.Sprintf("ulimit -u %d", actual),
	}
}

// parseMaxProcesses extracts the soft "Max processes" limit from
// /proc/self/limits. It returns 0 if the line is missing.
func parseMaxProcesses(limits string) int {
	for _, line := range strings.Split(limits, "\n") {
		if !strings.HasPrefix(line, "Max processes") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return 0
		}
		if fields[2] == "unlimited" {
			return 1000000
		}
		var n int
		fmt.Sscanf(fields[2], "%d", &n)
		return n
	}
	return 0
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed || check.Warning {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "shell":
		return "install a POSIX shell or pass --shell /path/to/sh"
	case "trigger_signal":
		return "pick a smaller -s offset"
	case "watch_path":
		return "create the directory or fix --watch"
	case "file_descriptors":
		return "ulimit -n 1024 (or edit /etc/security/limits.conf)"
	case "process_limit":
		return "ulimit -u 4096 (or edit /etc/security/limits.conf)"
	default:
		return "see interlope --help"
	}
}
