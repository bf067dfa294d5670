//go:build !windows

package safety

import (
	"os"
	"syscall"
)

// processAlive probes liveness with signal 0, the standard Unix idiom:
// FindProcess always succeeds on Unix, so the real check is the signal.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
