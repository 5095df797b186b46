package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MaxRecentDiagnostics is the number of diagnostics kept for the dashboard
// and the exit summary.
const MaxRecentDiagnostics = 50

// Diagnostic is one report delivered to the sink.
type Diagnostic struct {
	Time   time.Time
	Level  slog.Level
	Event  string
	Detail string
}

// String renders the diagnostic on one line.
func (d Diagnostic) String() string {
	if d.Detail == "" {
		return fmt.Sprintf("%s %s %s", d.Time.Format("15:04:05.000"), d.Level, d.Event)
	}
	return fmt.Sprintf("%s %s %s %s", d.Time.Format("15:04:05.000"), d.Level, d.Event, d.Detail)
}

// Reporter is the diagnostic sink. Every report is kept in a ring buffer;
// log output is optionally rate limited so that a command failing on a short
// interval cannot flood the log. Suppressed reports are counted and the
// count is attached to the next report that gets through.
type Reporter struct {
	logger  *slog.Logger
	limiter *rate.Limiter // nil = unlimited

	mu         sync.Mutex
	buffer     []Diagnostic
	bufIdx     int
	total      int64
	suppressed int64
	pending    int64 // suppressed since the last emitted report
}

// NewReporter creates a reporter. perSecond <= 0 disables rate limiting.
func NewReporter(logger *slog.Logger, perSecond float64, burst int) *Reporter {
	r := &Reporter{
		logger: logger,
		buffer: make([]Diagnostic, MaxRecentDiagnostics),
	}
	if perSecond > 0 {
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return r
}

// Report records a diagnostic and logs it unless rate limited.
// args are slog-style key/value pairs.
func (r *Reporter) Report(ctx context.Context, level slog.Level, event string, args ...any) {
	d := Diagnostic{
		Time:   time.Now(),
		Level:  level,
		Event:  event,
		Detail: formatArgs(args),
	}

	r.mu.Lock()
	r.buffer[r.bufIdx] = d
	r.bufIdx = (r.bufIdx + 1) % MaxRecentDiagnostics
	r.total++
	if r.limiter != nil && !r.limiter.Allow() {
		r.suppressed++
		r.pending++
		r.mu.Unlock()
		return
	}
	pending := r.pending
	r.pending = 0
	r.mu.Unlock()

	if pending > 0 {
		args = append(args, "suppressed", pending)
	}
	r.logger.Log(ctx, level, event, args...)
}

// Warn reports a user-input warning: a value that was downgraded to a safe
// default rather than rejected.
func (r *Reporter) Warn(ctx context.Context, message string) {
	r.Report(ctx, slog.LevelWarn, "config_warning", "message", message)
}

// Recent returns up to n of the most recent diagnostics, oldest first.
func (r *Reporter) Recent(n int) []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > MaxRecentDiagnostics {
		n = MaxRecentDiagnostics
	}

	out := make([]Diagnostic, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.bufIdx - n + i + MaxRecentDiagnostics) % MaxRecentDiagnostics
		if !r.buffer[idx].Time.IsZero() {
			out = append(out, r.buffer[idx])
		}
	}
	return out
}

// Total returns the number of diagnostics reported.
func (r *Reporter) Total() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// Suppressed returns the number of diagnostics that were recorded but not
// logged because of the rate limit.
func (r *Reporter) Suppressed() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.suppressed
}

// formatArgs renders key/value pairs as "k=v k=v".
func formatArgs(args []any) string {
	var b strings.Builder
	for i := 0; i < len(args); i += 2 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		if i+1 < len(args) {
			fmt.Fprintf(&b, "%v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, "%v", args[i])
		}
	}
	return b.String()
}
