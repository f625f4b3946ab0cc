//go:build windows

package termination

import "os"

// Alive reports whether pid identifies a running process. Windows has no
// signal-0 equivalent through x/sys/unix, so this falls back to
// FindProcess, which on Windows itself opens a handle and fails for dead
// PIDs.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}
