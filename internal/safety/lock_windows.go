//go:build windows

package safety

// processAlive has no cheap Windows equivalent of a Unix signal-0 probe;
// this tool targets Linux, so Windows builds conservatively assume every
// recorded PID is still alive rather than ever reclaiming a lock wrongly.
func processAlive(pid int) bool {
	return true
}
