package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// ErrNoCommand is returned when there is nothing to run.
var ErrNoCommand = errors.New("no command given")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing every problem found.
//
// The upper bound of the trigger offset depends on the platform and is
// checked by the trigger package when the signal table is built.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.TriggerID < 0 {
		errs = append(errs, ValidationError{
			Field:   "signal",
			Message: fmt.Sprintf("must not be negative (got %d)", cfg.TriggerID),
		})
	}

	if cfg.Interval < 0 {
		errs = append(errs, ValidationError{
			Field:   "interval",
			Message: "must not be negative",
		})
	}

	if cfg.Schedule != "" {
		if cfg.Interval > 0 {
			errs = append(errs, ValidationError{
				Field:   "cron",
				Message: "cannot be combined with an interval",
			})
		}
		if _, err := ParseSchedule(cfg.Schedule); err != nil {
			errs = append(errs, ValidationError{
				Field:   "cron",
				Message: err.Error(),
			})
		}
	}

	if strings.TrimSpace(cfg.Shell) == "" {
		errs = append(errs, ValidationError{
			Field:   "shell",
			Message: "must not be empty",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	if cfg.ReportRate < 0 {
		errs = append(errs, ValidationError{
			Field:   "report_rate",
			Message: "must not be negative",
		})
	}
	if cfg.ReportRate > 0 && cfg.ReportBurst < 1 {
		errs = append(errs, ValidationError{
			Field:   "report_burst",
			Message: "must be at least 1 when report_rate is set",
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ParseSchedule parses a standard 5-field cron expression or a descriptor
// such as "@hourly" or "@every 30s".
func ParseSchedule(expr string) (cron.Schedule, error) {
	e := strings.TrimSpace(expr)
	if e == "" {
		return nil, errors.New("empty cron expression")
	}
	s, err := cron.ParseStandard(e)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return s, nil
}
