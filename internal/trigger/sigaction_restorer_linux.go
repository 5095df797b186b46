//go:build linux && (386 || amd64 || arm || arm64 || ppc64 || ppc64le || s390x)

package trigger

// kernelSigaction is the kernel's struct sigaction on architectures with
// SA_RESTORER.
type kernelSigaction struct {
	handler  uintptr
	flags    uintptr
	restorer uintptr
	mask     uint64
}
