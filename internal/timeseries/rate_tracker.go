// Package timeseries tracks how often the command runs and fails over
// rolling windows, in the style of load averages.
//
// Add() is lock-free. RecordSample() and Rates() take the ring buffer lock.
package timeseries

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// ringBufferSize holds 15 minutes of samples at 1 sample/sec.
	ringBufferSize = 900

	window1m  = 1 * time.Minute
	window5m  = 5 * time.Minute
	window15m = 15 * time.Minute
)

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// sample is a point-in-time copy of the cumulative counters.
type sample struct {
	timestamp time.Time
	runs      int64
	failures  int64
}

// RateTracker counts runs and failures and computes per-minute rates over
// 1, 5 and 15 minute windows.
//
// Usage:
//
//	tracker := NewRateTracker()
//	tracker.Add(failed)     // once per finished run
//	tracker.RecordSample()  // once per second from a ticker
//	rates := tracker.Rates()
type RateTracker struct {
	runs     atomic.Int64
	failures atomic.Int64

	samples  []sample
	writeIdx int
	mu       sync.RWMutex

	startTime time.Time
	clock     Clock
}

// Window is one rolling window's rates, per minute.
type Window struct {
	Runs     float64
	Failures float64
}

// Rates is a point-in-time view of the tracker.
type Rates struct {
	Runs     int64
	Failures int64

	Last1m  Window
	Last5m  Window
	Last15m Window
	Overall Window
}

// NewRateTracker creates a tracker on the real clock.
func NewRateTracker() *RateTracker {
	return NewRateTrackerWithClock(realClock{})
}

// NewRateTrackerWithClock creates a tracker with a custom clock for testing.
func NewRateTrackerWithClock(clock Clock) *RateTracker {
	now := clock.Now()
	t := &RateTracker{
		samples:   make([]sample, 0, ringBufferSize),
		startTime: now,
		clock:     clock,
	}
	t.samples = append(t.samples, sample{timestamp: now})
	return t
}

// Add counts one finished run.
func (t *RateTracker) Add(failed bool) {
	t.runs.Add(1)
	if failed {
		t.failures.Add(1)
	}
}

// RecordSample stores the current counters. Call it periodically.
func (t *RateTracker) RecordSample() {
	s := sample{
		timestamp: t.clock.Now(),
		runs:      t.runs.Load(),
		failures:  t.failures.Load(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.samples) < ringBufferSize {
		t.samples = append(t.samples, s)
		return
	}
	t.samples[t.writeIdx] = s
	t.writeIdx = (t.writeIdx + 1) % ringBufferSize
}

// Rates computes the current rates. With less history than a window, the
// oldest sample is used, so early values are never empty.
func (t *RateTracker) Rates() Rates {
	now := t.clock.Now()
	cur := sample{timestamp: now, runs: t.runs.Load(), failures: t.failures.Load()}

	t.mu.RLock()
	defer t.mu.RUnlock()

	r := Rates{Runs: cur.runs, Failures: cur.failures}
	r.Overall = perMinute(cur, sample{timestamp: t.startTime})
	r.Last1m = t.windowRates(cur, window1m)
	r.Last5m = t.windowRates(cur, window5m)
	r.Last15m = t.windowRates(cur, window15m)
	return r
}

// windowRates must be called with mu held.
func (t *RateTracker) windowRates(cur sample, window time.Duration) Window {
	target := cur.timestamp.Add(-window)

	// Closest sample at or before target.
	var best *sample
	var bestDiff time.Duration = -1
	for i := range t.samples {
		s := &t.samples[i]
		if s.timestamp.After(target) {
			continue
		}
		diff := target.Sub(s.timestamp)
		if bestDiff < 0 || diff < bestDiff {
			best = s
			bestDiff = diff
		}
	}
	if best == nil {
		best = t.oldestSample()
	}
	if best == nil {
		return Window{}
	}
	return perMinute(cur, *best)
}

func perMinute(cur, base sample) Window {
	elapsed := cur.timestamp.Sub(base.timestamp).Minutes()
	if elapsed <= 0 {
		return Window{}
	}
	return Window{
		Runs:     float64(cur.runs-base.runs) / elapsed,
		Failures: float64(cur.failures-base.failures) / elapsed,
	}
}

// oldestSample must be called with mu held.
func (t *RateTracker) oldestSample() *sample {
	if len(t.samples) == 0 {
		return nil
	}
	if len(t.samples) < ringBufferSize {
		return &t.samples[0]
	}
	return &t.samples[t.writeIdx]
}

// SampleCount returns the number of samples in the ring buffer.
func (t *RateTracker) SampleCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}
