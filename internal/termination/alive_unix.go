//go:build !windows

package termination

import (
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Alive reports whether pid identifies a running process, using signal 0
// (no-op permission/existence check) the same way the teacher's
// isProcessAlive did with syscall.Signal(0), but through x/sys/unix so one
// implementation covers every unix target instead of a linux/darwin pair.
// An exited process its parent has not reaped yet still answers signal 0;
// where /proc is available, its state field (Z or X) reports it as gone.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if err := unix.Kill(pid, 0); err != nil && err != unix.EPERM {
		return false
	}
	stat, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return true
	}
	s := string(stat)
	if i := strings.LastIndex(s, ")"); i >= 0 && i+2 < len(s) {
		return s[i+2] != 'Z' && s[i+2] != 'X'
	}
	return true
}
