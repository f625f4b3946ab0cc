// Package installer implements the external installer backend the stage
// controller drives through its three-stage protocol (spec §4.6): a
// bundle-swap backend that replaces a directory-tree application in
// place, and a package-install backend that shells out to a
// platform package installer. Both are grounded in the teacher's
// atomic-replace idiom (internal/update's BackupBinary/InstallBinary/
// RestoreBackup, generalized from a single binary to a directory tree)
// and its ExecFunc-with-timeout pattern for external command execution.
package installer

import (
	"context"
)

// Handle is the opaque reference the stage controller holds on an
// installer backend: InstallerHandle in the data model. Capabilities are
// read once stage 1 completes; the three Perform calls run on the
// installer worker sequence, never on the main scheduler.
type Handle interface {
	// CanInstallSilently reports whether this backend can complete
	// without any user-visible prompt, sampled after stage 1.
	CanInstallSilently() bool

	// DisplaysUserProgress reports whether the backend shows its own
	// progress UI, so the stage controller knows whether it must ask
	// the agent to show one instead.
	DisplaysUserProgress() bool

	// PerformFirstStage prepares the install (backups, preflight
	// checks) without touching the host's live files.
	PerformFirstStage(ctx context.Context) error

	// PerformSecondStage performs the replacement itself. allowingUI is
	// the updater's show-UI choice; neither backend in this package acts
	// on it.
	PerformSecondStage(ctx context.Context, allowingUI bool) error

	// PerformThirdStage finalizes the install after the host process
	// has terminated (e.g. dropping the now-redundant backup).
	PerformThirdStage(ctx context.Context) error

	// InstallationPathFor returns the path the newly installed bundle
	// or package now lives at, used to compute the relaunch target.
	InstallationPathFor() string

	// Cleanup releases any resources (staged files, temp directories)
	// the backend holds, regardless of which stage last ran. Must be
	// safe to call multiple times.
	Cleanup() error
}

// CancelledError is returned by PerformSecondStage when a package
// backend's installer reports the user cancelled the install.
type CancelledError struct{ Reason string }

func (e *CancelledError) Error() string {
	if e.Reason == "" {
		return "installer: installation cancelled"
	}
	return "installer: installation cancelled: " + e.Reason
}
