//go:build !unix

package trigger

import "os"

// Reserved returns nothing: there is no reserved signal class here. Use the
// file-watch trigger instead.
func Reserved() []os.Signal {
	return nil
}

// ReservedName describes the reserved class for usage and errors.
func ReservedName() string {
	return "none"
}

func signalName(sig os.Signal) string {
	return sig.String()
}

// runtimeOwned reports whether os/signal cannot manage sig.
func runtimeOwned(os.Signal) bool {
	return false
}

func setRuntimeSignalIgnored(os.Signal, bool) error {
	return nil
}
