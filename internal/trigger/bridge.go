package trigger

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
)

// Bridge owns the signal dispositions described by a Table. The trigger
// signal raises the flag; every other reserved signal is ignored. The
// dispositions stay in place until Stop.
type Bridge struct {
	table Table
	flag  *Flag
	sig   os.Signal

	ch   chan os.Signal
	done chan struct{}
	wg   sync.WaitGroup

	stopOnce sync.Once
	received atomic.Int64
}

// Install applies the table and starts the delivery goroutine.
func Install(table Table, flag *Flag) (*Bridge, error) {
	if flag == nil {
		return nil, errors.New("install trigger: nil flag")
	}
	entry, ok := table.Trigger()
	if !ok {
		return nil, errors.New("install trigger: table has no trigger entry")
	}

	b := &Bridge{
		table: table,
		flag:  flag,
		sig:   entry.Signal,
		ch:    make(chan os.Signal, 1),
		done:  make(chan struct{}),
	}

	ignored := table.Ignored()
	if len(ignored) > 0 {
		signal.Ignore(ignored...)
	}
	for _, sig := range ignored {
		if !runtimeOwned(sig) {
			continue
		}
		if err := setRuntimeSignalIgnored(sig, true); err != nil {
			signal.Reset(ignored...)
			return nil, fmt.Errorf("install trigger: ignore %s: %w", signalName(sig), err)
		}
	}
	signal.Notify(b.ch, b.sig)

	b.wg.Add(1)
	go b.deliver()

	return b, nil
}

// deliver only raises the flag. Anything slower belongs in the loop.
func (b *Bridge) deliver() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case <-b.ch:
			b.received.Add(1)
			b.flag.Set()
		}
	}
}

// Signal returns the trigger signal.
func (b *Bridge) Signal() os.Signal {
	return b.sig
}

// SignalName returns the trigger signal in pkill notation, e.g. "RTMIN+1".
func (b *Bridge) SignalName() string {
	return signalName(b.sig)
}

// Table returns the installed disposition table.
func (b *Bridge) Table() Table {
	return b.table
}

// Received returns how many trigger signals were delivered.
func (b *Bridge) Received() int64 {
	return b.received.Load()
}

// Stop unsubscribes the trigger, restores default dispositions for the
// ignored signals and waits for the delivery goroutine to exit.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		signal.Stop(b.ch)
		if ignored := b.table.Ignored(); len(ignored) > 0 {
			signal.Reset(ignored...)
			for _, sig := range ignored {
				if runtimeOwned(sig) {
					_ = setRuntimeSignalIgnored(sig, false)
				}
			}
		}
		close(b.done)
		b.wg.Wait()
	})
}
