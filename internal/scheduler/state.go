// Package scheduler drives the repeated execution of one command: run it,
// then wait for the interval, the cron schedule or the trigger, whichever
// comes first.
package scheduler

// State represents the current state of the loop.
type State int

const (
	// StateIdle is the initial state before Run is called.
	StateIdle State = iota

	// StateRunning indicates the command is executing.
	StateRunning

	// StateWaiting indicates the loop is waiting for the next wake-up.
	StateWaiting

	// StateStopped indicates Run returned because its context ended.
	StateStopped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateWaiting:
		return "waiting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// WakeReason records why the loop left Waiting.
type WakeReason int

const (
	// WakeTrigger means the interrupt flag was raised.
	WakeTrigger WakeReason = iota

	// WakeInterval means the fixed interval elapsed.
	WakeInterval

	// WakeSchedule means the cron schedule came due.
	WakeSchedule
)

// String returns the reason as used in logs and metric labels.
func (r WakeReason) String() string {
	switch r {
	case WakeTrigger:
		return "trigger"
	case WakeInterval:
		return "interval"
	case WakeSchedule:
		return "schedule"
	default:
		return "unknown"
	}
}
