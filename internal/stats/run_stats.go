// Package stats tracks run statistics for the scheduling loop.
//
// This file implements RunStats, which counts outcomes and wake-ups and keeps
// run-duration percentiles in a T-Digest.
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/interlope/internal/process"
	"github.com/randomizedcoder/interlope/internal/scheduler"
)

// Snapshot is a point-in-time copy of RunStats.
type Snapshot struct {
	Timestamp time.Time
	Elapsed   time.Duration

	// Outcomes
	Runs           int64
	Successes      int64
	LaunchFailures int64
	ChildFailures  int64
	FailureRate    float64 // failures / runs

	// Wake-ups by reason
	TriggerWakes  int64
	IntervalWakes int64
	ScheduleWakes int64

	// Last run
	LastKind     process.Kind
	LastExitCode int
	LastRunAt    time.Time
	LastDuration time.Duration

	// Run durations
	MinDuration time.Duration
	MaxDuration time.Duration
	AvgDuration time.Duration
	P50         time.Duration
	P95         time.Duration
	P99         time.Duration

	ExitCodes map[int]int64
}

// Failures returns launch plus child failures.
func (s *Snapshot) Failures() int64 {
	return s.LaunchFailures + s.ChildFailures
}

// Wakes returns the total number of wake-ups.
func (s *Snapshot) Wakes() int64 {
	return s.TriggerWakes + s.IntervalWakes + s.ScheduleWakes
}

// RunStats accumulates outcomes and wake-ups.
//
// Thread-safe: all methods can be called concurrently.
type RunStats struct {
	startTime time.Time

	runs           atomic.Int64
	successes      atomic.Int64
	launchFailures atomic.Int64
	childFailures  atomic.Int64

	triggerWakes  atomic.Int64
	intervalWakes atomic.Int64
	scheduleWakes atomic.Int64

	mu            sync.Mutex
	digest        *tdigest.TDigest
	exitCodes     map[int]int64
	last          process.Outcome
	minDuration   time.Duration
	maxDuration   time.Duration
	totalDuration time.Duration
}

// NewRunStats creates empty run statistics.
func NewRunStats() *RunStats {
	return &RunStats{
		startTime:   time.Now(),
		digest:      tdigest.NewWithCompression(100), // ~100 centroids, ~10KB
		exitCodes:   make(map[int]int64),
		minDuration: -1, // -1 = unset
	}
}

// RecordOutcome adds one finished run.
func (s *RunStats) RecordOutcome(o process.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs.Add(1)
	switch o.Kind {
	case process.Success:
		s.successes.Add(1)
	case process.LaunchFailure:
		s.launchFailures.Add(1)
	default:
		s.childFailures.Add(1)
	}

	s.last = o
	s.exitCodes[o.ExitCode]++
	s.digest.Add(float64(o.Duration.Nanoseconds()), 1)
	s.totalDuration += o.Duration
	if s.minDuration < 0 || o.Duration < s.minDuration {
		s.minDuration = o.Duration
	}
	if o.Duration > s.maxDuration {
		s.maxDuration = o.Duration
	}
}

// RecordWake counts one wake-up.
func (s *RunStats) RecordWake(reason scheduler.WakeReason) {
	switch reason {
	case scheduler.WakeTrigger:
		s.triggerWakes.Add(1)
	case scheduler.WakeInterval:
		s.intervalWakes.Add(1)
	case scheduler.WakeSchedule:
		s.scheduleWakes.Add(1)
	}
}

// Runs returns the number of finished runs.
func (s *RunStats) Runs() int64 {
	return s.runs.Load()
}

// StartTime returns when the stats were created.
func (s *RunStats) StartTime() time.Time {
	return s.startTime
}

// Snapshot returns a consistent copy of the current statistics.
func (s *RunStats) Snapshot() *Snapshot {
	now := time.Now()
	snap := &Snapshot{
		Timestamp:     now,
		Elapsed:       now.Sub(s.startTime),
		TriggerWakes:  s.triggerWakes.Load(),
		IntervalWakes: s.intervalWakes.Load(),
		ScheduleWakes: s.scheduleWakes.Load(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Outcome counters are read under the lock so they agree with the digest.
	snap.Runs = s.runs.Load()
	snap.Successes = s.successes.Load()
	snap.LaunchFailures = s.launchFailures.Load()
	snap.ChildFailures = s.childFailures.Load()

	snap.ExitCodes = make(map[int]int64, len(s.exitCodes))
	for code, n := range s.exitCodes {
		snap.ExitCodes[code] = n
	}

	if snap.Runs == 0 {
		return snap
	}

	snap.FailureRate = float64(snap.LaunchFailures+snap.ChildFailures) / float64(snap.Runs)
	snap.LastKind = s.last.Kind
	snap.LastExitCode = s.last.ExitCode
	snap.LastRunAt = s.last.Started
	snap.LastDuration = s.last.Duration
	snap.MinDuration = s.minDuration
	snap.MaxDuration = s.maxDuration
	snap.AvgDuration = s.totalDuration / time.Duration(snap.Runs)
	snap.P50 = time.Duration(s.digest.Quantile(0.50))
	snap.P95 = time.Duration(s.digest.Quantile(0.95))
	snap.P99 = time.Duration(s.digest.Quantile(0.99))
	return snap
}
