//go:build linux && (riscv64 || loong64)

package trigger

// kernelSigaction is the kernel's struct sigaction on architectures without
// SA_RESTORER.
type kernelSigaction struct {
	handler uintptr
	flags   uintptr
	mask    uint64
}
