// Package main provides the interlope CLI entry point.
//
// interlope runs a shell command on an interval, on a cron schedule, or
// immediately when a reserved real-time signal arrives.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/randomizedcoder/interlope/internal/config"
	"github.com/randomizedcoder/interlope/internal/logging"
	"github.com/randomizedcoder/interlope/internal/orchestrator"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/interlope
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// exitError carries a non-zero exit code out of cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	cfg := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "interlope [flags] [--] <command...>",
		Short:         "Run a command on an interval or on demand via a signal",
		Version:       resolveVersion(),
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetVersionTemplate("interlope {{.Version}}\n")

	fs := cmd.Flags()
	// Everything after the first positional argument belongs to the command.
	fs.SetInterspersed(false)
	raw := config.BindFlags(fs, cfg)

	cmd.SetHelpFunc(func(c *cobra.Command, _ []string) {
		config.PrintUsage(c.OutOrStdout(), c.Flags())
	})

	cmd.RunE = func(c *cobra.Command, positional []string) error {
		return execute(c.Context(), cfg, raw, c, positional, stderr)
	}
	return cmd
}

func execute(ctx context.Context, cfg *config.Config, raw *config.Flags, c *cobra.Command, positional []string, stderr io.Writer) error {
	fs := c.Flags()

	intervalSet := fs.Changed(config.FlagInterval)
	if cfg.ConfigFile != "" {
		fc, err := config.LoadFile(cfg.ConfigFile)
		if err != nil {
			fmt.Fprintf(stderr, "Configuration error: %v\n", err)
			return &exitError{code: 1, err: err}
		}
		fileInterval, err := config.ApplyFile(cfg, raw, fc, fs.Changed)
		if err != nil {
			fmt.Fprintf(stderr, "Configuration error: %v\n", err)
			return &exitError{code: 1, err: err}
		}
		intervalSet = intervalSet || fileInterval
	}

	warnings := config.Finalize(cfg, raw, intervalSet, positional)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return &exitError{code: 1, err: err}
	}

	if !cfg.HasCommand() {
		fmt.Fprintf(stderr, "interlope: %v, nothing to do (see --help)\n", config.ErrNoCommand)
		return nil
	}

	logger := newLogger(cfg, stderr)
	logging.SetDefault(logger)

	orch, err := orchestrator.New(cfg, logger, orchestrator.Options{
		Version: resolveVersion(),
		Output:  stderr,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return &exitError{code: 1, err: err}
	}

	for _, w := range warnings {
		orch.Reporter().Warn(ctx, w)
	}

	logger.Info("starting",
		"version", resolveVersion(),
		"command", cfg.Command,
		"mode", orch.ModeLabel(),
		"signal_offset", cfg.TriggerID,
		"metrics_addr", cfg.MetricsAddr,
	)

	if !cfg.TUIEnabled {
		printBanner(stderr, cfg, orch.ModeDescription())
	}

	if err := orch.Run(ctx); err != nil {
		logger.Error("interlope_failed", "error", err)
		if cfg.TUIEnabled {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return &exitError{code: 1, err: err}
	}
	return nil
}

// newLogger builds the process logger. -v lowers the level to debug and
// adds source locations.
func newLogger(cfg *config.Config, stderr io.Writer) *slog.Logger {
	// Log lines would corrupt the dashboard.
	if cfg.TUIEnabled {
		return logging.Discard()
	}
	return logging.NewLoggerTo(stderr, cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
}

// resolveVersion prefers the ldflags version, then the module version
// recorded by "go install".
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return version
}

var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 2)

	bannerLabel = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Width(11)
)

// printBanner prints the startup banner.
func printBanner(w io.Writer, cfg *config.Config, mode string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, bannerStyle.Render("interlope "+resolveVersion()))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", bannerLabel.Render("Command:"), cfg.Command)
	fmt.Fprintf(w, "  %s %s\n", bannerLabel.Render("Mode:"), mode)
	fmt.Fprintf(w, "  %s %d (pkill -RTMIN+%d)\n", bannerLabel.Render("Signal:"), cfg.TriggerID, cfg.TriggerID)
	if cfg.WatchPath != "" {
		fmt.Fprintf(w, "  %s %s\n", bannerLabel.Render("Watch:"), cfg.WatchPath)
	}
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(w, "  %s http://%s/metrics\n", bannerLabel.Render("Metrics:"), cfg.MetricsAddr)
	}
	fmt.Fprintln(w)
}
