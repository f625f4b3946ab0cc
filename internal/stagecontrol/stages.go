package stagecontrol

import (
	"context"
	"errors"
	"fmt"

	"installerd/internal/bundle"
	"installerd/internal/installer"
	"installerd/internal/installerconf"
	"installerd/internal/ipc"
	"installerd/internal/session"
	"installerd/internal/validate"
	"installerd/version"
)

// handleInstallationInput decodes, validates, and stores the updater's
// InstallationInput, then kicks off extraction. Spec §3 allows this
// message to arrive more than once (resubmitted after an extraction
// failure); each arrival replaces whatever input preceded it.
func (c *Controller) handleInstallationInput(payload []byte) {
	var in session.InstallationInput
	if err := ipc.DecodeObject(payload, ipc.TagInstallationInput, &in); err != nil {
		c.fatal(fmt.Errorf("stagecontrol: malformed installation input: %w", err))
		return
	}
	if err := in.Validate(c.sess); err != nil {
		c.fatal(fmt.Errorf("stagecontrol: invalid installation input: %w", err))
		return
	}
	host, err := bundle.Resolve(in.HostBundlePath)
	if err != nil {
		c.fatal(fmt.Errorf("stagecontrol: resolve host bundle: %w", err))
		return
	}

	c.mu.Lock()
	c.input = &in
	c.hostInfo = host
	c.receivedInstallationInput = true
	c.mu.Unlock()

	c.sess.SetPhase(session.PhaseExtracting)
	c.beginExtraction()
}

func (c *Controller) beginExtraction() {
	_ = c.sendUpdater(ipc.ExtractionStarted, nil)

	c.mu.Lock()
	archivePath := c.input.ArchivePath()
	c.mu.Unlock()

	uar, err := c.deps.LookupUnarchiver(archivePath)
	if err != nil {
		c.onExtractionComplete(err, "")
		return
	}

	extractDir := c.deps.Paths.ExtractDir()
	c.submitWork(func() {
		err := uar.Extract(context.Background(), archivePath, extractDir, func(fraction float64) {
			_ = c.sendUpdater(ipc.ExtractedWithProgress, ipc.EncodeProgress(fraction))
		})
		c.onExtractionComplete(err, extractDir)
	})
}

// maxExtractionAttemptsBeforeWarning bounds nothing (spec §4.6 allows an
// unbounded number of INSTALLATION_INPUT resubmissions after extraction
// failure) but past this many attempts in one daemon run, onExtractionComplete
// logs at warn level instead of info, since a run this is happening to is
// worth an operator's attention even though it's still allowed to proceed.
const maxExtractionAttemptsBeforeWarning = 3

// onExtractionComplete is the only point where a failure does not end the
// attempt: spec §4.6 has the daemon fall back to AwaitingInputs so the
// updater can resubmit a corrected InstallationInput without a fresh
// daemon launch.
func (c *Controller) onExtractionComplete(err error, extractedDir string) {
	if err != nil {
		c.mu.Lock()
		c.extractionAttempts++
		attempts := c.extractionAttempts
		c.input = nil
		c.receivedInstallationInput = false
		c.mu.Unlock()

		if attempts > maxExtractionAttemptsBeforeWarning {
			c.deps.Logger.Warn("stagecontrol: extraction failed repeatedly, awaiting a new installation input",
				"err", err, "attempts", attempts)
		} else {
			c.deps.Logger.Info("stagecontrol: extraction failed, awaiting a new installation input",
				"err", err, "attempts", attempts)
		}

		c.sess.SetPhase(session.PhaseAwaitingInputs)
		_ = c.sendUpdater(ipc.ArchiveExtractionFailed, nil)
		return
	}

	c.mu.Lock()
	c.extractedPath = extractedDir
	c.mu.Unlock()

	c.beginValidation()
}

func (c *Controller) beginValidation() {
	_ = c.sendUpdater(ipc.ValidationStarted, nil)
	c.sess.SetPhase(session.PhaseValidating)

	c.mu.Lock()
	in := validate.Input{
		Host:             c.hostInfo,
		ArchivePath:      c.input.ArchivePath(),
		ExtractedPath:    c.extractedPath,
		EncodedSignature: c.input.EncodedSignature,
	}
	c.mu.Unlock()

	c.submitWork(func() {
		decision, err := validate.Validate(in)
		c.onValidationComplete(decision, err)
	})
}

func (c *Controller) onValidationComplete(decision validate.Decision, err error) {
	if err != nil {
		c.fatal(fmt.Errorf("stagecontrol: validation: %w", err))
		return
	}
	if !decision.Accepted {
		c.fatal(fmt.Errorf("stagecontrol: archive rejected: %s", decision.Reason))
		return
	}

	c.mu.Lock()
	extractedPath := c.extractedPath
	c.mu.Unlock()

	source, err := bundle.FindInstallSource(extractedPath)
	if err != nil {
		c.fatal(fmt.Errorf("stagecontrol: resolve install source after acceptance: %w", err))
		return
	}

	c.mu.Lock()
	c.extractedSource = source
	c.mu.Unlock()

	c.logVersionDelta(source)

	_ = c.sendUpdater(ipc.InstallationStartedStage1, nil)
	c.advanceBootstrapGate(eventValidatorAccepted)
}

// logVersionDelta records the host-vs-new version comparison for
// diagnostics. Package/bundle manifests aren't guaranteed to carry
// dotted-triple semantic versions, so a parse failure is logged at debug
// level rather than treated as a validation failure.
func (c *Controller) logVersionDelta(source *bundle.Info) {
	c.mu.Lock()
	hostVersion := c.hostInfo.Version
	c.mu.Unlock()

	newer, err := version.IsNewer(source.Version, hostVersion)
	if err != nil {
		c.deps.Logger.Debug("stagecontrol: version comparison unavailable",
			"host_version", hostVersion, "new_version", source.Version, "err", err)
		return
	}
	c.deps.Logger.Info("stagecontrol: version delta",
		"host_version", hostVersion, "new_version", source.Version, "new_is_newer", newer)
}

// runStage1 runs on the worker sequence. It constructs the installer
// backend, performs the first stage, and reports the sampled capability
// flags, then opens the host-termination wait. If RESUME_TO_STAGE_2
// already arrived while stage 1 was running, stage 2 is scheduled
// immediately afterward.
func (c *Controller) runStage1() {
	c.mu.Lock()
	host, source, in, paths := c.hostInfo, c.extractedSource, c.input, c.deps.Paths
	allowInteraction := c.sess.AllowInteraction
	updater := c.updater
	c.mu.Unlock()

	// Set before PerformFirstStage runs: spec §4.3 requires an updater
	// disconnect to be tolerated, not fatal, from the top of stage 1
	// execution onward, and a real first stage (file copy, disk preflight)
	// can run long enough for a disconnect to land mid-call.
	updater.SetWillCompleteInstallation()

	handle, err := c.deps.NewInstallerHandle(host, source, in, paths, allowInteraction)
	if err != nil {
		c.fatal(fmt.Errorf("stagecontrol: construct installer backend: %w", err))
		return
	}

	if err := handle.PerformFirstStage(context.Background()); err != nil {
		_ = handle.Cleanup()
		c.fatal(fmt.Errorf("stagecontrol: stage 1: %w", err))
		return
	}

	c.mu.Lock()
	c.installerHandle = handle
	c.performedStage1 = true
	result := ipc.Stage1Result{
		CanInstallSilently: handle.CanInstallSilently(),
		TargetTerminated:   c.terminationHdl.Terminated(),
	}
	resumeAlready := c.resumeReceived
	c.mu.Unlock()

	_ = c.sendUpdater(ipc.InstallationFinishedStage1, result.Encode())

	c.beginHostTerminationWait()

	if resumeAlready {
		c.scheduleStage2IfNeeded()
	}
}

func (c *Controller) handleResumeToStage2(cmd ipc.Stage2Command) {
	c.mu.Lock()
	c.shouldRelaunch = cmd.Relaunch
	c.shouldShowUI = cmd.ShowUI
	c.resumeReceived = true
	stage1Done := c.performedStage1
	c.mu.Unlock()

	if stage1Done {
		c.scheduleStage2IfNeeded()
	} else {
		c.sess.SetPhase(session.PhaseStage2Pending)
	}
}

func (c *Controller) beginHostTerminationWait() {
	c.sess.SetPhase(session.PhaseAwaitingHostTermination)

	c.mu.Lock()
	c.receivedUpdaterPong = false
	deferUI := c.shouldShowUI && !c.installerHandle.DisplaysUserProgress()
	c.shouldLaunchInstallerProgress = deferUI
	termHandle := c.terminationHdl
	c.mu.Unlock()

	_ = c.sendUpdater(ipc.UpdaterAlivePing, nil)

	if deferUI {
		c.deps.AfterFunc(installerconf.ProgressDeferDelay(), c.onProgressDeferElapsed)
	}

	go func() {
		<-termHandle.Done()
		c.submitWork(c.onHostTerminated)
	}()
}

// onProgressDeferElapsed re-checks its precondition on fire, per spec §5:
// the flag may already have been cleared by stage 3 completing, or the
// updater may have answered its liveness ping in the meantime.
func (c *Controller) onProgressDeferElapsed() {
	c.mu.Lock()
	shouldShow := c.shouldLaunchInstallerProgress && !c.receivedUpdaterPong
	agent := c.agent
	c.mu.Unlock()

	if shouldShow && agent != nil {
		_ = agent.ShowProgress()
	}
}

// onHostTerminated is the termination watcher's only callback. Stage 3
// must never run ahead of stage 2, so it advances stage 2 first (a no-op
// if RESUME_TO_STAGE_2 hasn't arrived yet) and only proceeds to stage 3
// once stage 2 has actually completed; if resume is still outstanding,
// runStage3IfReady's next call — triggered once the resume message does
// arrive — picks the install back up from here.
func (c *Controller) onHostTerminated() {
	c.scheduleStage2IfNeededSync()
	c.runStage3IfReady()
}

func (c *Controller) scheduleStage2IfNeeded() {
	c.submitWork(func() {
		c.scheduleStage2IfNeededSync()
		c.runStage3IfReady()
	})
}

// runStage3IfReady runs stage 3 at most once, and only once both the
// host has terminated and stage 2 has completed — whichever of the two
// preconditions lands last is responsible for triggering it.
func (c *Controller) runStage3IfReady() {
	c.mu.Lock()
	ready := c.performedStage2 && !c.performedStage3 && c.terminationHdl != nil && c.terminationHdl.Terminated()
	c.mu.Unlock()
	if ready {
		c.runStage3()
	}
}

// scheduleStage2IfNeededSync is the idempotent perform_stage2_if_needed
// latch: it runs stage 2 at most once, and only after RESUME_TO_STAGE_2
// has been received. It is reachable from the resume message handler and
// from onHostTerminated; when the host terminates before the resume
// message, the call from onHostTerminated does nothing and stage 2 waits
// for the resume message.
func (c *Controller) scheduleStage2IfNeededSync() {
	c.mu.Lock()
	if c.performedStage2 || !c.resumeReceived {
		c.mu.Unlock()
		return
	}
	allowingUI := c.shouldShowUI
	handle := c.installerHandle
	c.mu.Unlock()

	c.sess.SetPhase(session.PhaseStage2Running)
	err := handle.PerformSecondStage(context.Background(), allowingUI)

	c.mu.Lock()
	targetTerminated := c.terminationHdl.Terminated()
	c.mu.Unlock()

	var cancelled *installer.CancelledError
	if errors.As(err, &cancelled) {
		result := ipc.Stage2Result{Cancelled: true, TargetTerminated: targetTerminated}
		_ = c.sendUpdater(ipc.InstallationFinishedStage2, result.Encode())
		c.fatal(fmt.Errorf("stagecontrol: stage 2 cancelled: %w", err))
		return
	}
	if err != nil {
		c.fatal(fmt.Errorf("stagecontrol: stage 2: %w", err))
		return
	}

	c.mu.Lock()
	c.performedStage2 = true
	c.mu.Unlock()

	result := ipc.Stage2Result{Cancelled: false, TargetTerminated: targetTerminated}
	_ = c.sendUpdater(ipc.InstallationFinishedStage2, result.Encode())
}

func (c *Controller) runStage3() {
	c.sess.SetPhase(session.PhaseStage3Running)

	c.mu.Lock()
	handle := c.installerHandle
	c.mu.Unlock()

	if handle == nil {
		c.fatal(errors.New("stagecontrol: host terminated before stage 1 produced an installer handle"))
		return
	}

	if err := handle.PerformThirdStage(context.Background()); err != nil {
		_ = handle.Cleanup()
		c.fatal(fmt.Errorf("stagecontrol: stage 3: %w", err))
		return
	}

	c.mu.Lock()
	c.performedStage3 = true
	c.shouldLaunchInstallerProgress = false
	shouldRelaunch := c.shouldRelaunch
	relaunchPath := c.input.RelaunchPath
	hostPath := c.hostInfo.Path
	agent := c.agent
	c.mu.Unlock()

	if agent != nil {
		_ = agent.StopProgress()
	}
	_ = c.sendUpdater(ipc.InstallationFinishedStage3, nil)

	installPath := handle.InstallationPathFor()
	target := relaunchPath
	if session.CanonicalizeHostPath(installPath) != session.CanonicalizeHostPath(hostPath) {
		target = installPath
	}

	if shouldRelaunch && agent != nil {
		_ = agent.RelaunchApp(target)
	}

	_ = handle.Cleanup()
	c.sess.SetPhase(session.PhaseFinalizing)

	c.deps.AfterFunc(installerconf.ExitDelay(), c.exitSuccess)
}

// handleAppcastItemData republishes the update's appcast metadata to the
// agent, enriched with whatever silent-install capability has been
// sampled so far (spec §4.8). A malformed payload is dropped rather than
// treated as fatal: this channel is advisory, not required for the
// install to proceed.
func (c *Controller) handleAppcastItemData(payload []byte) {
	var item interface{}
	if err := ipc.DecodeObject(payload, ipc.TagAppcastItem, &item); err != nil {
		c.deps.Logger.Warn("stagecontrol: malformed appcast item, dropping", "err", err)
		return
	}

	c.mu.Lock()
	handle := c.installerHandle
	agent := c.agent
	c.mu.Unlock()

	canInstallSilently := false
	if handle != nil {
		canInstallSilently = handle.CanInstallSilently()
	}

	encoded, err := ipc.EncodeObject(ipc.TagInstallationInfo, struct {
		AppcastItem        interface{} `json:"appcast_item"`
		CanInstallSilently bool        `json:"can_install_silently"`
	}{AppcastItem: item, CanInstallSilently: canInstallSilently})
	if err != nil {
		c.deps.Logger.Warn("stagecontrol: encode installation info", "err", err)
		return
	}

	if agent != nil {
		_ = agent.RegisterInstallationInfo(encoded)
	}
}

func (c *Controller) sendUpdater(id ipc.Identifier, payload []byte) error {
	c.mu.Lock()
	updater := c.updater
	c.mu.Unlock()
	if updater == nil {
		return errors.New("stagecontrol: no updater connected")
	}
	return updater.Send(id, payload)
}
