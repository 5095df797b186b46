//go:build unix

package preflight

import (
	"fmt"
	"syscall"
)

// checkFileDescriptors warns when the descriptor limit is very low.
func checkFileDescriptors() Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}

	actual := 1 << 30
	if uint64(limit.Cur) < uint64(actual) {
		actual = int(limit.Cur)
	}
	return Check{
		Name:     "file_descriptors",
		Required: minFileDescriptors,
		Actual:   actual,
		Passed:   true,
		Warning:  actual < minFileDescriptors,
		Message:  fmt.Sprintf("ulimit -n %d", actual),
	}
}
