// Package stagecontrol is the installer daemon's core: it owns the
// cooperative single-threaded scheduler that reacts to inbound protocol
// messages, timer fires, and worker completions, plus the one serial
// worker sequence that runs the long-running calls (extraction,
// validation, the three installer stages) off that scheduler. Every other
// package under internal/ is a collaborator wired in here; nothing in
// this package talks to a socket or a filesystem path directly except
// through those collaborators.
//
// The concurrency model mirrors the teacher's split between a request
// goroutine and a single background worker (internal/update's
// installLoop): state mutation happens under one mutex so handlers behave
// as if they ran on a single thread, while the worker channel guarantees
// the installer backend and the unarchiver never run two calls at once.
package stagecontrol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"installerd/internal/agentlink"
	"installerd/internal/bundle"
	"installerd/internal/installer"
	"installerd/internal/installerconf"
	"installerd/internal/ipc"
	"installerd/internal/session"
	"installerd/internal/termination"
	"installerd/internal/unarchiver"
	"installerd/internal/updaterlink"
)

// Dependencies wires every collaborator the controller needs. Fields left
// nil get a production default in New, the same optional-override shape
// the teacher's ServiceController constructor uses for ExecFunc.
type Dependencies struct {
	Session       *session.DaemonSession
	Paths         session.Paths
	UpdaterServer *updaterlink.Server
	Logger        *slog.Logger

	// AfterFunc arms a one-shot timer; overridable so tests can fire
	// deadlines synchronously instead of sleeping real wall-clock time.
	AfterFunc func(d time.Duration, f func()) *time.Timer

	LookupUnarchiver   func(archivePath string) (unarchiver.Unarchiver, error)
	NewInstallerHandle func(host, source *bundle.Info, in *session.InstallationInput, paths session.Paths, allowInteraction bool) (installer.Handle, error)

	// ExitFunc terminates the process. Overridden in tests to observe the
	// exit code instead of actually calling os.Exit.
	ExitFunc func(code int)

	// SelfPath is the daemon's own executable, removed on every exit path
	// per spec §7's self-delete requirement. Empty disables it.
	SelfPath string
}

func (d *Dependencies) setDefaults() {
	if d.AfterFunc == nil {
		d.AfterFunc = time.AfterFunc
	}
	if d.LookupUnarchiver == nil {
		d.LookupUnarchiver = unarchiver.Lookup
	}
	if d.NewInstallerHandle == nil {
		d.NewInstallerHandle = DefaultNewInstallerHandle
	}
	if d.ExitFunc == nil {
		d.ExitFunc = os.Exit
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
}

// DefaultNewInstallerHandle picks a bundle-swap or package-install backend
// based on what the extracted install source turned out to be.
func DefaultNewInstallerHandle(host, source *bundle.Info, in *session.InstallationInput, paths session.Paths, allowInteraction bool) (installer.Handle, error) {
	if source.IsPackage {
		return installer.NewPackageBackend(installerconf.PackageInstallCommand(), source.Path, host.Path, allowInteraction), nil
	}
	return installer.NewBundleBackend(host.Path, source.Path, paths.BackupDir), nil
}

// Controller drives a single installation attempt from AwaitingInputs
// through Exiting. One Controller serves one daemon process for one host
// bundle identifier, the same one-process-one-target scope DaemonSession
// itself is built around.
type Controller struct {
	deps Dependencies
	sess *session.DaemonSession

	worker chan func()

	mu sync.Mutex

	updater *updaterlink.Link
	agent   *agentlink.Link

	input           *session.InstallationInput
	hostInfo        *bundle.Info
	extractedPath   string
	extractedSource *bundle.Info
	installerHandle installer.Handle
	terminationHdl  *termination.Handle

	receivedInstallationInput bool
	bootstrap                 bootstrapState
	bootstrapFired            bool
	extractionAttempts        int

	performedStage1 bool
	performedStage2 bool
	performedStage3 bool
	resumeReceived  bool
	shouldRelaunch  bool
	shouldShowUI    bool

	receivedUpdaterPong           bool
	shouldLaunchInstallerProgress bool

	exitOnce sync.Once
}

// New constructs a Controller in PhaseIdle. Call Start to begin the
// first-message deadline and open the worker sequence.
func New(deps Dependencies) *Controller {
	deps.setDefaults()
	deps.Logger = deps.Logger.With("run_id", uuid.NewString())
	return &Controller{
		deps:   deps,
		sess:   deps.Session,
		worker: make(chan func(), 32),
	}
}

// Start begins the worker goroutine and arms the first-message deadline:
// an installation input and an agent connection must both arrive within
// installerconf.FirstMessageDeadline() or the daemon exits with failure.
func (c *Controller) Start() {
	go c.runWorker()
	c.sess.SetPhase(session.PhaseAwaitingInputs)
	c.deps.AfterFunc(installerconf.FirstMessageDeadline(), c.checkFirstMessageDeadline)
}

func (c *Controller) runWorker() {
	for fn := range c.worker {
		fn()
	}
}

func (c *Controller) submitWork(fn func()) {
	c.worker <- fn
}

func (c *Controller) checkFirstMessageDeadline() {
	c.mu.Lock()
	ready := c.receivedInstallationInput && c.agent != nil
	c.mu.Unlock()
	if !ready {
		c.fatal(errors.New("stagecontrol: first-message deadline elapsed without both an installation input and an agent connection"))
	}
}

// HandleUpdaterConnection accepts rw as the updater link, rejecting a
// second concurrent connection per spec §4.3. The caller owns closing rw
// on rejection.
func (c *Controller) HandleUpdaterConnection(rw io.ReadWriteCloser) error {
	link, err := c.deps.UpdaterServer.Accept(rw)
	if err != nil {
		return err
	}
	link.OnMessage = c.onUpdaterMessage
	link.OnFatalInvalidate = c.fatal

	c.mu.Lock()
	c.updater = link
	c.mu.Unlock()

	go link.Serve()
	return nil
}

// HandleAgentConnection wraps conn as the agent link and advances the
// bootstrap gate. The stage controller holds at most one agent link at a
// time; a second connection replaces the first, matching PeerLinks'
// single-slot-per-peer invariant.
func (c *Controller) HandleAgentConnection(conn io.ReadWriteCloser) {
	link := agentlink.New(ipc.NewConn(conn))
	link.OnInvalidate = c.onAgentInvalidate

	c.mu.Lock()
	c.agent = link
	c.mu.Unlock()

	c.advanceBootstrapGate(eventAgentConnected)
}

func (c *Controller) onAgentInvalidate() {
	c.mu.Lock()
	done := c.performedStage3
	c.mu.Unlock()
	if !done {
		c.fatal(errors.New("stagecontrol: agent link invalidated before installation completed"))
	}
}

func (c *Controller) onUpdaterMessage(msg ipc.Message) {
	switch msg.ID {
	case ipc.InstallationInput:
		c.handleInstallationInput(msg.Payload)
	case ipc.SentUpdateAppcastItemData:
		c.handleAppcastItemData(msg.Payload)
	case ipc.ResumeToStage2:
		cmd, err := ipc.DecodeStage2Command(msg.Payload)
		if err != nil {
			c.deps.Logger.Warn("stagecontrol: malformed resume_to_stage_2, ignoring", "err", err)
			return
		}
		c.handleResumeToStage2(cmd)
	case ipc.UpdaterAlivePong:
		c.mu.Lock()
		c.receivedUpdaterPong = true
		c.mu.Unlock()
	default:
		c.deps.Logger.Warn("stagecontrol: unexpected message from updater", "id", msg.ID)
	}
}

// onBootstrapGateOpen runs once both preconditions have landed: it asks
// the agent to resolve the relaunch PID, arms a termination watcher on it,
// and hands stage 1 to the worker sequence.
func (c *Controller) onBootstrapGateOpen() {
	c.mu.Lock()
	agent := c.agent
	relaunchPath := c.input.RelaunchPath
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), installerconf.PIDRetrievalDeadline())
	defer cancel()

	pid, err := agent.RegisterRelaunchBundlePath(ctx, relaunchPath)
	if err != nil {
		c.fatal(fmt.Errorf("stagecontrol: relaunch pid retrieval: %w", err))
		return
	}

	handle, ok := termination.Watch(context.Background(), pid)
	if !ok {
		c.fatal(fmt.Errorf("stagecontrol: could not watch relaunch target pid %d", pid))
		return
	}

	c.mu.Lock()
	c.terminationHdl = handle
	c.mu.Unlock()
	c.sess.SetPhase(session.PhaseStage1Running)

	c.submitWork(c.runStage1)
}

func (c *Controller) fatal(err error) {
	c.exitOnce.Do(func() {
		c.deps.Logger.Error("stagecontrol: fatal exit", "err", err, "phase", c.sess.Phase())
		c.cleanup()
		c.deps.ExitFunc(1)
	})
}

func (c *Controller) exitSuccess() {
	c.exitOnce.Do(func() {
		c.deps.Logger.Info("stagecontrol: installation complete, exiting")
		c.cleanup()
		c.deps.ExitFunc(0)
	})
}

// cleanup runs on every exit path regardless of outcome: it tears down
// both peer links, removes the staging directory, and self-deletes the
// daemon binary, matching spec §7's "no partial state survives an exit".
func (c *Controller) cleanup() {
	c.sess.SetPhase(session.PhaseExiting)

	c.mu.Lock()
	updater, agent := c.updater, c.agent
	c.mu.Unlock()

	// Detach the invalidation callbacks before closing: they call fatal,
	// and a call made from inside exitOnce.Do would block forever.
	if updater != nil {
		updater.OnFatalInvalidate = nil
		_ = updater.Close()
	}
	if agent != nil {
		agent.OnInvalidate = nil
		_ = agent.Close()
	}
	if err := c.deps.Paths.RemoveStaging(); err != nil {
		c.deps.Logger.Warn("stagecontrol: staging cleanup failed", "err", err)
	}
	if c.deps.SelfPath != "" {
		if err := os.Remove(c.deps.SelfPath); err != nil && !os.IsNotExist(err) {
			c.deps.Logger.Warn("stagecontrol: self-delete failed", "err", err)
		}
	}
}
