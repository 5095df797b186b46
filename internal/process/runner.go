// Package process runs the scheduled command through a shell and classifies
// how it ended.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// EnvRunID names the environment variable that carries the run ID to the
// command.
const EnvRunID = "INTERLOPE_RUN_ID"

// ExitCommandNotFound is the shell's exit status for a command that could
// not be found or executed.
const ExitCommandNotFound = 127

// Kind classifies one command execution.
type Kind int

const (
	// Success means the command exited with status zero.
	Success Kind = iota

	// LaunchFailure means the shell or the command could not be started.
	LaunchFailure

	// ChildFailure means the command started but exited non-zero or was
	// killed by a signal.
	ChildFailure
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case LaunchFailure:
		return "launch_failure"
	case ChildFailure:
		return "child_failure"
	default:
		return "unknown"
	}
}

// Outcome is the result of one execution.
type Outcome struct {
	RunID    string
	Kind     Kind
	ExitCode int
	Err      error
	Started  time.Time
	Duration time.Duration
}

// Failed reports whether the outcome should be reported.
func (o Outcome) Failed() bool {
	return o.Kind != Success
}

// Runner executes a command string and blocks until it finishes.
// This interface keeps the scheduling loop independent of how commands run.
type Runner interface {
	Run(ctx context.Context, command string) Outcome
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, command string) Outcome

// Run calls f(ctx, command).
func (f RunnerFunc) Run(ctx context.Context, command string) Outcome {
	return f(ctx, command)
}

// ShellRunner runs commands as "<Shell> -c <command>". The command text is
// passed through untouched; quoting is the shell's business.
type ShellRunner struct {
	Shell string

	// Nil streams are inherited from this process.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewShellRunner returns a runner for shell with inherited stdio.
func NewShellRunner(shell string) *ShellRunner {
	return &ShellRunner{Shell: shell}
}

// Run executes command and classifies the result. Cancelling ctx kills the
// shell.
func (r *ShellRunner) Run(ctx context.Context, command string) Outcome {
	runID := uuid.NewString()
	cmd := exec.CommandContext(ctx, r.Shell, "-c", command)
	cmd.Env = append(os.Environ(), EnvRunID+"="+runID)
	cmd.Stdin = orReader(r.Stdin, os.Stdin)
	cmd.Stdout = orWriter(r.Stdout, os.Stdout)
	cmd.Stderr = orWriter(r.Stderr, os.Stderr)

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return Outcome{
			RunID:    runID,
			Kind:     LaunchFailure,
			ExitCode: ExitCommandNotFound,
			Err:      fmt.Errorf("start %s: %w", r.Shell, err),
			Started:  started,
			Duration: time.Since(started),
		}
	}

	waitErr := cmd.Wait()
	exitCode := extractExitCode(waitErr)
	out := Outcome{
		RunID:    runID,
		Kind:     Classify(exitCode),
		ExitCode: exitCode,
		Started:  started,
		Duration: time.Since(started),
	}
	if waitErr != nil {
		out.Err = waitErr
	}
	return out
}

// Classify maps an exit status to a Kind.
func Classify(exitCode int) Kind {
	switch exitCode {
	case 0:
		return Success
	case ExitCommandNotFound:
		return LaunchFailure
	default:
		return ChildFailure
	}
}

// ShellUsable checks that shell exists, is executable and can run a trivial
// script. Without it nothing can be scheduled.
func ShellUsable(ctx context.Context, shell string) error {
	path, err := exec.LookPath(shell)
	if err != nil {
		return fmt.Errorf("shell %q: %w", shell, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "-c", "exit 0")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("shell %q cannot run commands: %w", path, err)
	}
	return nil
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
	}

	// Unknown error, assume exit code 1
	return 1
}

func orReader(r, fallback io.Reader) io.Reader {
	if r != nil {
		return r
	}
	return fallback
}

func orWriter(w, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}
