// Package session holds the daemon's per-process state: the singleton
// DaemonSession (identifier, interaction flag, current phase), the
// InstallationInput value object and its invariants, the staging/backup
// directory layout, and the instance lock that keeps two installerd
// processes from fighting over the same host bundle identifier. Adapted
// from the teacher's internal/update directory and lock-file layout
// (dirs.go, lock.go), generalized from one fixed agent binary to one
// directory tree per host bundle identifier.
package session

import (
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"
)

// DefaultBaseDir is the parent of every identifier's staging tree when
// the operator does not override it.
const DefaultBaseDir = "/var/lib/installerd"

// dirPermissions restricts staging/backup directories to their owner,
// matching the teacher's update-directory convention.
const dirPermissions = 0700

// Paths holds every filesystem location the daemon owns for a single
// installation identified by identifier.
type Paths struct {
	BaseDir    string
	StagingDir string
	BackupDir  string
	LockFile   string

	// SessionID namespaces this attempt's extraction subfolder under
	// StagingDir. Sortable so a stray daemon crash leaves behind a
	// directory name an operator can order by when it ran.
	SessionID string
}

// NewPaths derives a Paths tree rooted at baseDir for the given host
// bundle identifier, keeping concurrent installs for different
// identifiers from sharing a staging directory.
func NewPaths(baseDir, identifier string) Paths {
	root := filepath.Join(baseDir, identifier)
	return Paths{
		BaseDir:    root,
		StagingDir: filepath.Join(root, "staging"),
		BackupDir:  filepath.Join(root, "backup"),
		LockFile:   filepath.Join(baseDir, identifier+".lock"),
		SessionID:  ulid.Make().String(),
	}
}

// ExtractDir is where the archive for this attempt is unpacked, namespaced
// by SessionID so a stale extraction from a prior crashed attempt is never
// mistaken for the current one.
func (p Paths) ExtractDir() string {
	name := p.SessionID
	if name == "" {
		name = "extracted"
	}
	return filepath.Join(p.StagingDir, name)
}

// EnsureDirectories creates the staging and backup directories with
// owner-only permissions, idempotently.
func (p Paths) EnsureDirectories() error {
	for _, dir := range []string{p.BaseDir, p.StagingDir, p.BackupDir} {
		if err := os.MkdirAll(dir, dirPermissions); err != nil {
			return err
		}
		if err := os.Chmod(dir, dirPermissions); err != nil {
			return err
		}
	}
	return nil
}

// RemoveStaging removes the staging directory and everything under it;
// the daemon is its sole writer so a full removal is always safe. Best
// effort: errors are returned for logging but every fatal-exit path
// treats staging cleanup as advisory, not blocking.
func (p Paths) RemoveStaging() error {
	return os.RemoveAll(p.StagingDir)
}
