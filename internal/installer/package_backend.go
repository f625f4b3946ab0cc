package installer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

// DefaultCommandTimeout bounds how long the external package installer is
// given to run, mirroring the teacher's DefaultStopTimeout/
// DefaultStartTimeout convention for systemctl invocations.
const DefaultCommandTimeout = 5 * time.Minute

// ExecFunc runs an external command and returns its combined output,
// injectable for tests the same way the teacher's ExecFunc let
// ServiceController tests avoid touching systemctl.
type ExecFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// DefaultExecFunc executes commands via os/exec.
func DefaultExecFunc(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// PackageBackend installs a package (.deb/.pkg/.msi-equivalent) by
// invoking a configurable command template, e.g.
// "dpkg -i {package}" or "installer -pkg {package} -target /".
// The template is expanded once with the package path substituted for
// the literal token "{package}", then parsed into argv with
// go-shellwords so quoting in operator-supplied templates behaves the
// way a shell would without actually invoking a shell.
type PackageBackend struct {
	commandTemplate  string
	packagePath      string
	installPath      string
	allowInteractive bool
	timeout          time.Duration
	exec             ExecFunc
}

// NewPackageBackend builds a backend that installs packagePath using
// commandTemplate, a space-separated command whose "{package}" token is
// replaced by packagePath before argv parsing. installPath is what
// InstallationPathFor reports. allowInteraction is the daemon's
// session-wide interaction flag (spec §3/§6, set once at launch), which is
// all the information CanInstallSilently has available at the point stage
// 1 reports it — before PerformSecondStage has ever run.
func NewPackageBackend(commandTemplate, packagePath, installPath string, allowInteraction bool) *PackageBackend {
	return &PackageBackend{
		commandTemplate:  commandTemplate,
		packagePath:      packagePath,
		installPath:      installPath,
		allowInteractive: allowInteraction,
		timeout:          DefaultCommandTimeout,
		exec:             DefaultExecFunc,
	}
}

// CanInstallSilently reports the daemon's session-wide interaction flag,
// the only input available at the point stage 1 reports this (spec §4.6's
// "Record can_install_silently" happens before stage 2 ever runs).
func (p *PackageBackend) CanInstallSilently() bool   { return p.allowInteractive }
func (p *PackageBackend) DisplaysUserProgress() bool { return true }

// PerformFirstStage verifies the package file is present and readable, and
// preflights that the staging filesystem has room for the installer to
// unpack it (the external installer's own target-volume space is its own
// concern; this only guards against the staging volume filling up mid-run).
func (p *PackageBackend) PerformFirstStage(ctx context.Context) error {
	info, err := os.Stat(p.packagePath)
	if err != nil {
		return fmt.Errorf("installer: package not found: %w", err)
	}
	if err := CheckDiskSpace(nil, filepath.Dir(p.packagePath), info.Size()); err != nil {
		return err
	}
	return nil
}

// PerformSecondStage runs the configured installer command. allowingUI is
// not passed to the command; whether the external installer may prompt is
// decided by the command template alone.
func (p *PackageBackend) PerformSecondStage(ctx context.Context, allowingUI bool) error {
	argv, err := expandCommand(p.commandTemplate, p.packagePath)
	if err != nil {
		return fmt.Errorf("installer: parse command template: %w", err)
	}
	if len(argv) == 0 {
		return fmt.Errorf("installer: empty command template")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	output, err := p.exec(ctx, argv[0], argv[1:]...)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("installer: package install timed out: %w", ctx.Err())
		}
		return fmt.Errorf("installer: package install failed: %w (output: %s)", err, bytes.TrimSpace(output))
	}
	return nil
}

// PerformThirdStage removes the staged package file now that it has been
// installed.
func (p *PackageBackend) PerformThirdStage(ctx context.Context) error {
	if err := os.Remove(p.packagePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("installer: remove staged package: %w", err)
	}
	return nil
}

// InstallationPathFor implements Handle.
func (p *PackageBackend) InstallationPathFor() string { return p.installPath }

// Cleanup removes the staged package file if it is still present.
func (p *PackageBackend) Cleanup() error {
	err := os.Remove(p.packagePath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func expandCommand(template, packagePath string) ([]string, error) {
	expanded := strings.ReplaceAll(template, "{package}", packagePath)
	return shellwords.Parse(expanded)
}
