package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"installerd/internal/session"
	"installerd/internal/stagecontrol"
	"installerd/internal/updaterlink"
)

// processLog is process-lifecycle glue: launch, lock acquisition, listener
// setup, shutdown. Kept separate from the per-phase slog.Logger handed to
// the stage controller, which traces the install itself.
var processLog = log.WithField("component", "installerd")

func runDaemon(ctx context.Context, cmd *cli.Command) error {
	identifier := cmd.String("identifier")
	baseDir := cmd.String("base-dir")
	procLog := processLog.WithField("identifier", identifier)

	logger, closeLogger, err := newLogger(identifier)
	if err != nil {
		return fmt.Errorf("installerd: open log: %w", err)
	}
	defer closeLogger()

	paths := session.NewPaths(baseDir, identifier)
	if err := paths.EnsureDirectories(); err != nil {
		return fmt.Errorf("installerd: prepare directories: %w", err)
	}

	lock := session.NewInstanceLock(paths.LockFile)
	if err := lock.Acquire(); err != nil {
		procLog.WithError(err).Error("failed to acquire instance lock")
		return fmt.Errorf("installerd: acquire instance lock: %w", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			procLog.WithError(err).Warn("failed to release instance lock")
		}
	}()

	updaterSocket := filepath.Join(baseDir, identifier+".installer")
	agentSocket := cmd.String("agent-endpoint")
	if agentSocket == "" {
		agentSocket = filepath.Join(baseDir, identifier+".installer.agent")
	}

	updaterListener, err := listenUnix(updaterSocket)
	if err != nil {
		return fmt.Errorf("installerd: listen on updater endpoint: %w", err)
	}
	defer updaterListener.Close()

	agentListener, err := listenUnix(agentSocket)
	if err != nil {
		return fmt.Errorf("installerd: listen on agent endpoint: %w", err)
	}
	defer agentListener.Close()

	sess := session.NewDaemonSession(identifier, cmd.Bool("allow-interaction"))

	exitCh := make(chan int, 1)
	controller := stagecontrol.New(stagecontrol.Dependencies{
		Session:       sess,
		Paths:         paths,
		UpdaterServer: updaterlink.NewServer(),
		Logger:        logger,
		ExitFunc:      func(code int) { exitCh <- code },
		SelfPath:      selfExecutablePath(),
	})

	procLog.WithFields(log.Fields{"updater_socket": updaterSocket, "agent_socket": agentSocket}).Info("starting")
	logger.Info("installerd: starting", "updater_socket", updaterSocket, "agent_socket", agentSocket)
	controller.Start()

	go serveConnections(logger, updaterListener, func(conn net.Conn) {
		if err := controller.HandleUpdaterConnection(conn); err != nil {
			logger.Warn("installerd: rejected updater connection", "err", err)
			_ = conn.Close()
		}
	})
	go serveConnections(logger, agentListener, func(conn net.Conn) {
		controller.HandleAgentConnection(conn)
	})

	stop := watchSignals(func() {
		procLog.Warn("signalled, exiting without completing install")
		logger.Warn("installerd: signalled, exiting without completing install")
		exitCh <- 1
	})
	defer stop()

	code := <-exitCh
	procLog.WithField("exit_code", code).Info("exiting")
	if code != 0 {
		return cli.Exit("installation did not complete successfully", code)
	}
	return nil
}

// selfExecutablePath resolves the daemon's own binary for the
// cleanup-time self-delete, falling back to empty (self-delete disabled)
// if the OS cannot resolve it.
func selfExecutablePath() string {
	path, err := os.Executable()
	if err != nil {
		return ""
	}
	return path
}
