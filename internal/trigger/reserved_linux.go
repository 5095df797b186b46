package trigger

import (
	"os"
	"strconv"
	"syscall"
)

// Real-time signal bounds as seen by glibc programs. The C library keeps the
// first two kernel real-time signals for itself, so SIGRTMIN is 34. musl
// keeps three and reports SIGRTMIN as 35; on musl systems "pkill -RTMIN+n"
// therefore names offset n+1 here.
const (
	sigRTMin = 34
	sigRTMax = 64
)

// sigRuntime is RTMIN. The Go runtime keeps it for itself, and os/signal
// neither catches nor ignores it: Notify and Ignore silently do nothing and
// the default action, terminate, stays in place. It can never be the
// trigger, and it is ignored through rt_sigaction instead.
const sigRuntime = syscall.Signal(sigRTMin)

// Reserved returns SIGRTMIN..SIGRTMAX. Offset n is what
// "pkill -RTMIN+n" sends.
func Reserved() []os.Signal {
	sigs := make([]os.Signal, 0, sigRTMax-sigRTMin+1)
	for n := sigRTMin; n <= sigRTMax; n++ {
		sigs = append(sigs, syscall.Signal(n))
	}
	return sigs
}

// ReservedName describes the reserved class for usage and errors.
func ReservedName() string {
	return "SIGRTMIN..SIGRTMAX"
}

// runtimeOwned reports whether os/signal cannot manage sig.
func runtimeOwned(sig os.Signal) bool {
	return sig == sigRuntime
}

func signalName(sig os.Signal) string {
	if s, ok := sig.(syscall.Signal); ok {
		n := int(s)
		if n >= sigRTMin && n <= sigRTMax {
			if n == sigRTMin {
				return "RTMIN"
			}
			return "RTMIN+" + strconv.Itoa(n-sigRTMin)
		}
		return strconv.Itoa(n)
	}
	return sig.String()
}
