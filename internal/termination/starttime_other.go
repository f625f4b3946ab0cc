//go:build !linux

package termination

import "fmt"

// StartTime has no portable implementation outside /proc: non-Linux
// unix targets report an error here, which the instance lock's
// staleness check treats the same as "cannot determine, assume stale".
func StartTime(pid int) (int64, error) {
	if !Alive(pid) {
		return 0, fmt.Errorf("termination: process %d not alive", pid)
	}
	return 0, fmt.Errorf("termination: start-time lookup unsupported on this platform")
}
