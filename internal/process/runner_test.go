package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, sh not available: %v", err)
	}
	return sh
}

// ===== Tests: Classify =====

func TestClassify(t *testing.T) {
	testCases := []struct {
		exitCode int
		want     Kind
	}{
		{0, Success},
		{1, ChildFailure},
		{2, ChildFailure},
		{126, ChildFailure},
		{127, LaunchFailure},
		{128 + 15, ChildFailure},
		{255, ChildFailure},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("exit_%d", tc.exitCode), func(t *testing.T) {
			require.Equal(t, tc.want, Classify(tc.exitCode))
		})
	}
}

func TestKind_String(t *testing.T) {
	require.Equal(t, "success", Success.String())
	require.Equal(t, "launch_failure", LaunchFailure.String())
	require.Equal(t, "child_failure", ChildFailure.String())
	require.Equal(t, "unknown", Kind(42).String())
}

func TestOutcome_Failed(t *testing.T) {
	require.False(t, Outcome{Kind: Success}.Failed())
	require.True(t, Outcome{Kind: LaunchFailure}.Failed())
	require.True(t, Outcome{Kind: ChildFailure}.Failed())
}

// ===== Tests: ShellRunner =====

func TestShellRunner_Run(t *testing.T) {
	sh := testShell(t)

	testCases := []struct {
		name     string
		command  string
		wantKind Kind
		wantCode int
	}{
		{"true", "true", Success, 0},
		{"false", "false", ChildFailure, 1},
		{"exit_3", "exit 3", ChildFailure, 3},
		{"not_found", "interlope-no-such-command-xyz", LaunchFailure, 127},
		{"signalled", "kill -TERM $$", ChildFailure, 128 + 15},
		{"compound", "true && exit 4", ChildFailure, 4},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := &ShellRunner{Shell: sh, Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
			out := r.Run(context.Background(), tc.command)

			require.Equal(t, tc.wantKind, out.Kind)
			require.Equal(t, tc.wantCode, out.ExitCode)
			require.False(t, out.Started.IsZero())
			require.GreaterOrEqual(t, out.Duration, time.Duration(0))
			if tc.wantCode == 0 {
				require.NoError(t, out.Err)
			} else {
				require.Error(t, out.Err)
			}
		})
	}
}

func TestShellRunner_PassesCommandVerbatim(t *testing.T) {
	sh := testShell(t)
	var stdout bytes.Buffer

	r := &ShellRunner{Shell: sh, Stdout: &stdout}
	out := r.Run(context.Background(), `printf '%s|%s' "a b" c`)

	require.Equal(t, Success, out.Kind)
	require.Equal(t, "a b|c", stdout.String())
}

func TestShellRunner_ExportsRunID(t *testing.T) {
	sh := testShell(t)
	var stdout bytes.Buffer

	r := &ShellRunner{Shell: sh, Stdout: &stdout}
	first := r.Run(context.Background(), `printf '%s' "$`+EnvRunID+`"`)
	second := r.Run(context.Background(), "true")

	require.Equal(t, Success, first.Kind)
	require.NotEmpty(t, first.RunID)
	require.Equal(t, first.RunID, stdout.String())
	require.NotEqual(t, first.RunID, second.RunID, "every run gets its own ID")
}

func TestShellRunner_MissingShell(t *testing.T) {
	r := NewShellRunner("/nonexistent/interlope-shell")
	out := r.Run(context.Background(), "true")

	require.Equal(t, LaunchFailure, out.Kind)
	require.Equal(t, ExitCommandNotFound, out.ExitCode)
	require.Error(t, out.Err)
	require.Contains(t, out.Err.Error(), "/nonexistent/interlope-shell")
	require.NotEmpty(t, out.RunID)
}

func TestShellRunner_ContextCancel(t *testing.T) {
	sh := testShell(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	out := NewShellRunner(sh).Run(ctx, "sleep 5")

	require.Less(t, time.Since(start), 4*time.Second)
	require.Equal(t, ChildFailure, out.Kind)
	require.Equal(t, 128+9, out.ExitCode)
}

func TestRunnerFunc(t *testing.T) {
	var got string
	var r Runner = RunnerFunc(func(_ context.Context, command string) Outcome {
		got = command
		return Outcome{Kind: Success}
	})

	out := r.Run(context.Background(), "echo hi")
	require.Equal(t, "echo hi", got)
	require.Equal(t, Success, out.Kind)
}

// ===== Tests: ShellUsable =====

func TestShellUsable(t *testing.T) {
	sh := testShell(t)
	require.NoError(t, ShellUsable(context.Background(), sh))
	require.NoError(t, ShellUsable(context.Background(), "sh"), "bare names are looked up in PATH")
}

func TestShellUsable_Missing(t *testing.T) {
	err := ShellUsable(context.Background(), "/nonexistent/interlope-shell")
	require.Error(t, err)
}

func TestShellUsable_NotAShell(t *testing.T) {
	f, err := exec.LookPath("false")
	if err != nil {
		t.Skipf("skipped, false not available: %v", err)
	}
	require.Error(t, ShellUsable(context.Background(), f))
}

// ===== Tests: extractExitCode =====

func TestExtractExitCode(t *testing.T) {
	require.Equal(t, 0, extractExitCode(nil))
	require.Equal(t, 1, extractExitCode(errors.New("not an exit error")))

	sh := testShell(t)
	err := exec.Command(sh, "-c", "exit 42").Run()
	require.Equal(t, 42, extractExitCode(err))
}
