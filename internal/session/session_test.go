package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"installerd/internal/bundle"
)

func writeHostManifest(t *testing.T, dir, identifier string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	data, err := json.Marshal(map[string]string{"identifier": identifier, "version": "1.0.0"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, bundle.ManifestFile), data, 0644))
}

func TestDaemonSession_PhaseTransitions(t *testing.T) {
	s := NewDaemonSession("com.example.app", false)
	assert.Equal(t, PhaseIdle, s.Phase())

	s.SetPhase(PhaseExtracting)
	assert.Equal(t, PhaseExtracting, s.Phase())
}

func TestInstallationInput_Validate_AcceptsMatchingIdentifier(t *testing.T) {
	root := t.TempDir()
	hostDir := filepath.Join(root, "Example.app")
	writeHostManifest(t, hostDir, "com.example.app")

	s := NewDaemonSession("com.example.app", false)
	in := &InstallationInput{
		HostBundlePath:   hostDir,
		StagingDirectory: filepath.Join(root, "staging"),
		ArchiveFileName:  "update.tar.gz",
		RelaunchPath:     hostDir,
	}
	assert.NoError(t, in.Validate(s))
}

func TestInstallationInput_Validate_RejectsIdentifierMismatch(t *testing.T) {
	root := t.TempDir()
	hostDir := filepath.Join(root, "Example.app")
	writeHostManifest(t, hostDir, "com.other.app")

	s := NewDaemonSession("com.example.app", false)
	in := &InstallationInput{HostBundlePath: hostDir, ArchiveFileName: "update.tar.gz", RelaunchPath: hostDir}
	assert.Error(t, in.Validate(s))
}

func TestInstallationInput_Validate_RejectsMissingRelaunchPath(t *testing.T) {
	root := t.TempDir()
	hostDir := filepath.Join(root, "Example.app")
	writeHostManifest(t, hostDir, "com.example.app")

	s := NewDaemonSession("com.example.app", false)
	in := &InstallationInput{HostBundlePath: hostDir, ArchiveFileName: "update.tar.gz"}
	assert.Error(t, in.Validate(s))
}

func TestInstallationInput_Validate_RejectsArchiveNameEscapingStaging(t *testing.T) {
	root := t.TempDir()
	hostDir := filepath.Join(root, "Example.app")
	writeHostManifest(t, hostDir, "com.example.app")

	s := NewDaemonSession("com.example.app", false)
	in := &InstallationInput{HostBundlePath: hostDir, ArchiveFileName: "../escape.tar.gz", RelaunchPath: hostDir}
	assert.Error(t, in.Validate(s))
}

func TestInstallationInput_ArchivePath(t *testing.T) {
	in := &InstallationInput{StagingDirectory: "/var/lib/installerd/staging", ArchiveFileName: "update.tar.gz"}
	assert.Equal(t, "/var/lib/installerd/staging/update.tar.gz", in.ArchivePath())
}

func TestPaths_EnsureDirectories_CreatesTree(t *testing.T) {
	base := t.TempDir()
	p := NewPaths(base, "com.example.app")
	require.NoError(t, p.EnsureDirectories())

	for _, dir := range []string{p.BaseDir, p.StagingDir, p.BackupDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestPaths_RemoveStaging(t *testing.T) {
	base := t.TempDir()
	p := NewPaths(base, "com.example.app")
	require.NoError(t, p.EnsureDirectories())
	require.NoError(t, os.WriteFile(filepath.Join(p.StagingDir, "update.tar.gz"), []byte("x"), 0644))

	require.NoError(t, p.RemoveStaging())
	_, err := os.Stat(p.StagingDir)
	assert.True(t, os.IsNotExist(err))
}
