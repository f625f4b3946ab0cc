//go:build linux

package termination

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// StartTime returns pid's start time in clock ticks since boot, read from
// /proc/[pid]/stat field 22. Used to detect PID reuse when a stale lock's
// owner PID has since been recycled by an unrelated process.
func StartTime(pid int) (int64, error) {
	if pid <= 0 {
		return 0, fmt.Errorf("termination: invalid PID: %d", pid)
	}

	statPath := fmt.Sprintf("/proc/%d/stat", pid)
	content, err := os.ReadFile(statPath)
	if err != nil {
		return 0, fmt.Errorf("termination: read %s: %w", statPath, err)
	}

	// comm (field 2) is parenthesized and may contain spaces; fields after
	// the last ')' are space-separated starting at field 3.
	data := string(content)
	closeParen := strings.LastIndex(data, ")")
	if closeParen == -1 {
		return 0, fmt.Errorf("termination: invalid format in %s", statPath)
	}

	fieldsAfterComm := strings.Fields(data[closeParen+1:])
	if len(fieldsAfterComm) < 20 {
		return 0, fmt.Errorf("termination: not enough fields in %s", statPath)
	}

	// starttime is field 22, index 19 counting from field 3.
	starttime, err := strconv.ParseInt(fieldsAfterComm[19], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("termination: parse starttime: %w", err)
	}
	return starttime, nil
}
