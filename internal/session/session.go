package session

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"installerd/internal/bundle"
)

// Phase enumerates the stage controller's states (spec §4.6), owned here
// because DaemonSession is defined as holding "the current phase".
type Phase string

const (
	PhaseIdle                    Phase = "Idle"
	PhaseAwaitingInputs          Phase = "AwaitingInputs"
	PhaseExtracting              Phase = "Extracting"
	PhaseValidating              Phase = "Validating"
	PhaseStage1Running           Phase = "Stage1Running"
	PhaseAwaitingHostTermination Phase = "AwaitingHostTermination"
	PhaseStage2Pending           Phase = "Stage2Pending"
	PhaseStage2Running           Phase = "Stage2Running"
	PhaseStage3Running           Phase = "Stage3Running"
	PhaseFinalizing              Phase = "Finalizing"
	PhaseExiting                 Phase = "Exiting"
)

// DaemonSession is the process-wide singleton: the host bundle
// identifier fixed at construction, the interaction-allowed flag, and
// the current phase. Everything else the daemon owns for its lifetime
// (peer links, installer handle, termination handle, staging directory)
// is held by the stage controller that wraps this session, not here.
type DaemonSession struct {
	Identifier       string
	AllowInteraction bool

	mu    sync.Mutex
	phase Phase
}

// NewDaemonSession constructs a session in PhaseIdle for identifier.
func NewDaemonSession(identifier string, allowInteraction bool) *DaemonSession {
	return &DaemonSession{Identifier: identifier, AllowInteraction: allowInteraction, phase: PhaseIdle}
}

// Phase returns the current phase.
func (s *DaemonSession) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// SetPhase transitions the session to phase.
func (s *DaemonSession) SetPhase(phase Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
}

// InstallationInput is the value the updater submits once per attempt
// (resubmitted after an extraction failure). Its fields mirror spec §3.
type InstallationInput struct {
	HostBundlePath     string `json:"host_bundle_path"`
	StagingDirectory   string `json:"staging_directory"`
	ArchiveFileName    string `json:"archive_file_name"`
	DecryptionPassword string `json:"decryption_password,omitempty"`
	EncodedSignature   string `json:"encoded_signature"`
	RelaunchPath       string `json:"relaunch_path"`
}

// ArchivePath is the full path to the downloaded archive, derived from
// the staging directory and archive file name.
func (in *InstallationInput) ArchivePath() string {
	return joinUnderStaging(in.StagingDirectory, in.ArchiveFileName)
}

// Validate enforces the invariants spec §3 places on InstallationInput:
// the host bundle's identifier must match the session's, a relaunch path
// must be present, and the archive must resolve to somewhere under the
// staging directory.
func (in *InstallationInput) Validate(s *DaemonSession) error {
	if in.RelaunchPath == "" {
		return fmt.Errorf("session: installation input missing relaunch path")
	}
	if in.ArchiveFileName == "" {
		return fmt.Errorf("session: installation input missing archive file name")
	}
	if strings.Contains(in.ArchiveFileName, "/") || in.ArchiveFileName == ".." {
		return fmt.Errorf("session: archive file name must not escape the staging directory")
	}

	host, err := bundle.Resolve(in.HostBundlePath)
	if err != nil {
		return fmt.Errorf("session: resolve host bundle: %w", err)
	}
	if host.Identifier != s.Identifier {
		return fmt.Errorf("session: host bundle identifier %q does not match configured identifier %q", host.Identifier, s.Identifier)
	}

	return nil
}

// CanonicalizeHostPath resolves symlinks in path so the stage-3 relaunch
// comparison isn't fooled by a host bundle reached through a symlinked
// parent directory (e.g. a "Current" symlink into a versioned install
// root). Falls back to the raw path if it doesn't resolve, since a path
// that no longer exists (already swapped out) isn't an error here.
func CanonicalizeHostPath(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return path
	}
	return resolved
}

func joinUnderStaging(stagingDir, archiveFileName string) string {
	if stagingDir == "" {
		return archiveFileName
	}
	return strings.TrimRight(stagingDir, "/") + "/" + archiveFileName
}
