package installer

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// diskSpaceBuffer is fixed headroom required on top of the bytes the caller
// asks for (the host bundle's size for the bundle backend's backup copy, the
// staged package's size for the package backend).
const diskSpaceBuffer = 10 * 1024 * 1024

// StatFunc returns the bytes available to an unprivileged writer at path.
type StatFunc func(path string) (uint64, error)

// UnixStatFunc is the production StatFunc, backed by statfs(2).
func UnixStatFunc(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// CheckDiskSpace fails fast if dir's filesystem cannot hold requiredBytes
// plus a fixed buffer. Invoked at the start of stage 1 by both backends,
// before either touches the host's files: the bundle backend checks the
// filesystem holding the host bundle, the package backend the filesystem
// holding the staged package.
func CheckDiskSpace(statFunc StatFunc, dir string, requiredBytes int64) error {
	if statFunc == nil {
		statFunc = UnixStatFunc
	}
	available, err := statFunc(dir)
	if err != nil {
		return fmt.Errorf("installer: check disk space for %s: %w", dir, err)
	}
	needed := uint64(requiredBytes) + diskSpaceBuffer
	if available < needed {
		return fmt.Errorf("installer: insufficient disk space at %s: need %d bytes, have %d", dir, needed, available)
	}
	return nil
}
