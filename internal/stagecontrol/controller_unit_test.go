package stagecontrol

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"installerd/internal/agentlink"
	"installerd/internal/bundle"
	"installerd/internal/ipc"
	"installerd/internal/session"
	"installerd/internal/updaterlink"
)

func newTestController(t *testing.T, exitCh chan int) *Controller {
	t.Helper()
	base := t.TempDir()
	paths := session.Paths{BaseDir: base, StagingDir: filepath.Join(base, "staging"), BackupDir: filepath.Join(base, "backup")}
	require.NoError(t, paths.EnsureDirectories())

	return New(Dependencies{
		Session:       session.NewDaemonSession("com.example.app", true),
		Paths:         paths,
		UpdaterServer: updaterlink.NewServer(),
		ExitFunc:      func(code int) { exitCh <- code },
	})
}

func TestCheckFirstMessageDeadline_FatalsWhenInputsIncomplete(t *testing.T) {
	exitCh := make(chan int, 1)
	c := newTestController(t, exitCh)

	c.checkFirstMessageDeadline()

	select {
	case code := <-exitCh:
		require.Equal(t, 1, code)
	case <-time.After(time.Second):
		t.Fatal("expected fatal exit when no input or agent arrived")
	}
}

func TestCheckFirstMessageDeadline_DoesNothingOnceBothArrived(t *testing.T) {
	exitCh := make(chan int, 1)
	c := newTestController(t, exitCh)

	c.mu.Lock()
	c.receivedInstallationInput = true
	c.agent = &agentlink.Link{}
	c.mu.Unlock()

	c.checkFirstMessageDeadline()

	select {
	case code := <-exitCh:
		t.Fatalf("unexpected exit with code %d", code)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandleInstallationInput_FatalsOnIdentifierMismatch(t *testing.T) {
	exitCh := make(chan int, 1)
	c := newTestController(t, exitCh)

	hostDir := filepath.Join(t.TempDir(), "host")
	require.NoError(t, os.MkdirAll(hostDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(hostDir, bundle.ManifestFile),
		[]byte(`{"identifier":"com.other.app","version":"1.0"}`), 0644))

	in := session.InstallationInput{
		HostBundlePath:   hostDir,
		StagingDirectory: c.deps.Paths.StagingDir,
		ArchiveFileName:  "update.tar.gz",
		RelaunchPath:     hostDir,
	}
	encoded, err := ipc.EncodeObject(ipc.TagInstallationInput, in)
	require.NoError(t, err)

	c.handleInstallationInput(encoded)

	select {
	case code := <-exitCh:
		require.Equal(t, 1, code)
	case <-time.After(time.Second):
		t.Fatal("expected fatal exit on identifier mismatch")
	}
}

func TestHandleInstallationInput_FatalsOnMalformedPayload(t *testing.T) {
	exitCh := make(chan int, 1)
	c := newTestController(t, exitCh)

	c.handleInstallationInput([]byte("not json"))

	select {
	case code := <-exitCh:
		require.Equal(t, 1, code)
	case <-time.After(time.Second):
		t.Fatal("expected fatal exit on malformed installation input")
	}
}

func TestOnExtractionComplete_CountsRepeatedFailuresWithoutRejecting(t *testing.T) {
	exitCh := make(chan int, 1)
	c := newTestController(t, exitCh)
	extractionErr := errors.New("extraction failed for test")

	for i := 1; i <= maxExtractionAttemptsBeforeWarning+2; i++ {
		c.onExtractionComplete(extractionErr, "")

		c.mu.Lock()
		attempts := c.extractionAttempts
		input := c.receivedInstallationInput
		c.mu.Unlock()

		require.Equal(t, i, attempts)
		require.False(t, input)
	}

	select {
	case code := <-exitCh:
		t.Fatalf("extraction failures must never be treated as fatal, got exit code %d", code)
	case <-time.After(100 * time.Millisecond):
	}
}
