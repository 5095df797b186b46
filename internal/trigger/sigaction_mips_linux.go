//go:build linux && (mips || mipsle || mips64 || mips64le)

package trigger

import (
	"fmt"
	"os"
)

// setRuntimeSignalIgnored is not implemented for the MIPS sigaction layout.
func setRuntimeSignalIgnored(sig os.Signal, _ bool) error {
	return fmt.Errorf("cannot change the disposition of %s on this architecture", signalName(sig))
}
