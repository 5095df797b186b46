//go:build linux && !(mips || mipsle || mips64 || mips64le)

package trigger

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	sigDFL     = 0
	sigIGN     = 1
	sigsetSize = 8
)

// setRuntimeSignalIgnored sets SIG_IGN (or SIG_DFL) on a signal the Go
// runtime installs no handler for.
func setRuntimeSignalIgnored(sig os.Signal, ignore bool) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return fmt.Errorf("signal %v is not a syscall.Signal", sig)
	}

	act := kernelSigaction{handler: sigDFL}
	if ignore {
		act.handler = sigIGN
	}
	_, _, errno := unix.RawSyscall6(unix.SYS_RT_SIGACTION,
		uintptr(s), uintptr(unsafe.Pointer(&act)), 0, sigsetSize, 0, 0)
	if errno != 0 {
		return fmt.Errorf("rt_sigaction %s: %w", signalName(sig), errno)
	}
	return nil
}
