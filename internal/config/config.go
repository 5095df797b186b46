// Package config provides configuration management for interlope.
package config

import "time"

// Config holds all configuration options for the scheduling daemon.
// It is built once at startup and treated as read-only afterwards.
type Config struct {
	// Scheduling
	Interval  time.Duration `json:"interval"` // 0 = signal-only
	TriggerID int           `json:"signal"`   // offset into the reserved signal range
	Schedule  string        `json:"cron"`     // cron expression, alternative to Interval
	Command   string        `json:"command"`  // passed verbatim to the shell

	// Execution
	Shell     string `json:"shell"`
	WatchPath string `json:"watch"` // file whose modification also fires the trigger

	// Observability
	LogFormat   string `json:"log_format"` // json, text
	LogLevel    string `json:"log_level"`
	Verbose     bool   `json:"verbose"`
	MetricsAddr string `json:"metrics"` // empty = disabled
	TUIEnabled  bool   `json:"tui"`

	// Diagnostics
	SkipPreflight bool    `json:"skip_preflight"`
	ReportRate    float64 `json:"report_rate"` // reports per second, 0 = unlimited
	ReportBurst   int     `json:"report_burst"`

	// ConfigFile is the YAML file the values were loaded from, if any.
	ConfigFile string `json:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Scheduling
		Interval:  0, // signal-only
		TriggerID: 1,

		// Execution
		Shell: "/bin/sh",

		// Observability
		LogFormat: "text",
		LogLevel:  "info",

		// Diagnostics
		ReportRate:  0, // unlimited
		ReportBurst: 10,
	}
}

// SignalOnly reports whether the loop has no periodic trigger at all.
func (c *Config) SignalOnly() bool {
	return c.Interval <= 0 && c.Schedule == ""
}

// HasCommand reports whether a command was supplied.
func (c *Config) HasCommand() bool {
	return c.Command != ""
}
