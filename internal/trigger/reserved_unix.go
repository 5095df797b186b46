//go:build unix && !linux

package trigger

import (
	"os"
	"syscall"
)

// Reserved returns the user-defined signals. Platforms without a portable
// real-time range only have these two.
func Reserved() []os.Signal {
	return []os.Signal{syscall.SIGUSR1, syscall.SIGUSR2}
}

// ReservedName describes the reserved class for usage and errors.
func ReservedName() string {
	return "SIGUSR1..SIGUSR2"
}

func signalName(sig os.Signal) string {
	switch sig {
	case syscall.SIGUSR1:
		return "USR1"
	case syscall.SIGUSR2:
		return "USR2"
	}
	return sig.String()
}

// runtimeOwned reports whether os/signal cannot manage sig.
func runtimeOwned(os.Signal) bool {
	return false
}

func setRuntimeSignalIgnored(os.Signal, bool) error {
	return nil
}
