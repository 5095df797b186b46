package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	yaml "go.yaml.in/yaml/v3"
)

// FileConfig mirrors Config for YAML files. Pointer fields distinguish
// "absent" from zero values so that only keys present in the file are applied.
type FileConfig struct {
	Interval      *string  `yaml:"interval"`
	Signal        *int     `yaml:"signal"`
	Cron          *string  `yaml:"cron"`
	Command       *string  `yaml:"command"`
	Shell         *string  `yaml:"shell"`
	Watch         *string  `yaml:"watch"`
	LogFormat     *string  `yaml:"log_format"`
	LogLevel      *string  `yaml:"log_level"`
	Verbose       *bool    `yaml:"verbose"`
	Metrics       *string  `yaml:"metrics"`
	TUI           *bool    `yaml:"tui"`
	SkipPreflight *bool    `yaml:"skip_preflight"`
	ReportRate    *float64 `yaml:"report_rate"`
	ReportBurst   *int     `yaml:"report_burst"`
}

// LoadFile reads and strictly decodes a YAML config file.
func LoadFile(path string) (*FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseFile(b)
}

// ParseFile decodes YAML config bytes, rejecting unknown keys.
func ParseFile(data []byte) (*FileConfig, error) {
	var fc FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		if errors.Is(err, io.EOF) {
			// empty file
			return &fc, nil
		}
		return nil, fmt.Errorf("yaml decode: %w", err)
	}
	return &fc, nil
}

// ApplyFile copies values present in fc into cfg, skipping any setting whose
// flag was given explicitly on the command line (changed reports that).
// The interval is written to raw so that Finalize applies the same
// non-positive-interval policy to file and flag values.
func ApplyFile(cfg *Config, raw *Flags, fc *FileConfig, changed func(flag string) bool) (intervalSet bool, err error) {
	if fc == nil {
		return false, nil
	}

	if fc.Interval != nil && !changed(FlagInterval) {
		d, err := ParseDurationField("interval", *fc.Interval)
		if err != nil {
			return false, err
		}
		raw.IntervalMs = int(d.Milliseconds())
		intervalSet = true
	}

	setInt(&cfg.TriggerID, fc.Signal, changed(FlagSignal))
	setString(&cfg.Schedule, fc.Cron, changed(FlagCron))
	setString(&cfg.Command, fc.Command, false)
	setString(&cfg.Shell, fc.Shell, changed(FlagShell))
	setString(&cfg.WatchPath, fc.Watch, changed(FlagWatch))
	setString(&cfg.LogFormat, fc.LogFormat, changed(FlagLogFormat))
	setString(&cfg.LogLevel, fc.LogLevel, changed(FlagLogLevel))
	setBool(&cfg.Verbose, fc.Verbose, changed(FlagVerbose))
	setString(&cfg.MetricsAddr, fc.Metrics, changed(FlagMetrics))
	setBool(&cfg.TUIEnabled, fc.TUI, changed(FlagTUI))
	setBool(&cfg.SkipPreflight, fc.SkipPreflight, changed(FlagSkipPreflight))
	if fc.ReportRate != nil && !changed(FlagReportRate) {
		cfg.ReportRate = *fc.ReportRate
	}
	setInt(&cfg.ReportBurst, fc.ReportBurst, changed(FlagReportBurst))

	return intervalSet, nil
}

func setString(dst *string, v *string, skip bool) {
	if v != nil && !skip {
		*dst = *v
	}
}

func setInt(dst *int, v *int, skip bool) {
	if v != nil && !skip {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool, skip bool) {
	if v != nil && !skip {
		*dst = *v
	}
}
