// Package trigger turns one designated out-of-band event into a
// level-triggered flag the scheduling loop can wait on.
package trigger

import (
	"context"
	"sync/atomic"
	"time"
)

// Flag is the interrupt flag shared between the delivery path and the loop.
//
// Set stores true and then offers a token on a one-slot channel. Clear swaps
// false and then drains the channel. A waiter checks the boolean first and
// then selects on the channel, so a Set that happens after the last Clear is
// always observed by the next wait.
//
// The flag is boolean, not a counter: two Sets before a Clear produce one
// wake-up.
type Flag struct {
	set  atomic.Bool
	wake chan struct{}
}

// NewFlag returns a cleared flag.
func NewFlag() *Flag {
	return &Flag{wake: make(chan struct{}, 1)}
}

// Set raises the flag. It never blocks and never allocates.
func (f *Flag) Set() {
	f.set.Store(true)
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// IsSet reports whether the flag is raised.
func (f *Flag) IsSet() bool {
	return f.set.Load()
}

// Clear lowers the flag and reports whether it was raised.
func (f *Flag) Clear() bool {
	was := f.set.Swap(false)
	select {
	case <-f.wake:
	default:
	}
	return was
}

// Wait blocks until the flag is raised, the timeout elapses or ctx is done.
// A timeout <= 0 waits without a deadline. It reports true when the flag was
// observed raised; the flag is left set for the caller to Clear.
func (f *Flag) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	if f.IsSet() {
		return true, nil
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline:
			return f.IsSet(), nil
		case <-f.wake:
			if f.IsSet() {
				return true, nil
			}
			// Stale token from a Set that was already cleared.
		}
	}
}
