package trigger

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrTriggerOutOfRange is returned when the trigger offset does not
	// select a signal in the reserved range.
	ErrTriggerOutOfRange = errors.New("trigger out of range")

	// ErrNoReservedSignals is returned on platforms without a reserved
	// signal class.
	ErrNoReservedSignals = errors.New("no reserved signals on this platform")
)

// Disposition is what happens when a reserved signal arrives.
type Disposition int

const (
	// DispositionIgnore discards the signal.
	DispositionIgnore Disposition = iota
	// DispositionTrigger raises the interrupt flag.
	DispositionTrigger
)

// String returns the disposition name.
func (d Disposition) String() string {
	switch d {
	case DispositionIgnore:
		return "ignore"
	case DispositionTrigger:
		return "trigger"
	default:
		return "unknown"
	}
}

// Entry is one row of the disposition table.
type Entry struct {
	Index       int // offset into the reserved range
	Signal      os.Signal
	Disposition Disposition
}

// Table lists a disposition for every signal of the reserved range.
type Table []Entry

// NewTable builds the table for triggerID. Exactly one entry triggers;
// every other entry is ignored. A signal the runtime owns cannot trigger.
func NewTable(triggerID int, reserved []os.Signal) (Table, error) {
	if len(reserved) == 0 {
		return nil, ErrNoReservedSignals
	}
	if triggerID < 0 || triggerID >= len(reserved) {
		return nil, fmt.Errorf("%w: %d not in [0, %d]", ErrTriggerOutOfRange, triggerID, len(reserved)-1)
	}
	if runtimeOwned(reserved[triggerID]) {
		return nil, fmt.Errorf("%w: %d selects %s, which the Go runtime keeps for itself",
			ErrTriggerOutOfRange, triggerID, signalName(reserved[triggerID]))
	}

	table := make(Table, len(reserved))
	for i, sig := range reserved {
		table[i] = Entry{Index: i, Signal: sig, Disposition: DispositionIgnore}
	}
	table[triggerID].Disposition = DispositionTrigger
	return table, nil
}

// Trigger returns the trigger entry.
func (t Table) Trigger() (Entry, bool) {
	for _, e := range t {
		if e.Disposition == DispositionTrigger {
			return e, true
		}
	}
	return Entry{}, false
}

// Ignored returns the signals with DispositionIgnore.
func (t Table) Ignored() []os.Signal {
	out := make([]os.Signal, 0, len(t))
	for _, e := range t {
		if e.Disposition == DispositionIgnore {
			out = append(out, e.Signal)
		}
	}
	return out
}

// String renders the table compactly, for example "34:ignore 35:trigger".
func (t Table) String() string {
	parts := make([]string, len(t))
	for i, e := range t {
		parts[i] = fmt.Sprintf("%s:%s", signalName(e.Signal), e.Disposition)
	}
	return strings.Join(parts, " ")
}
