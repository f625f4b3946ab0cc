// Package agentlink wraps the framed connection to the UI agent process
// (spec §4.2): requesting the relaunch PID, publishing installation info,
// toggling progress UI, and triggering relaunch, plus the connect/
// invalidate lifecycle callbacks the stage controller reacts to.
package agentlink

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"installerd/internal/ipc"
)

// Link is a single connection to the agent. The stage controller holds
// at most one at a time, matching PeerLinks' invariant.
type Link struct {
	conn *ipc.Conn

	mu          sync.Mutex
	invalidated bool

	// OnInvalidate is called exactly once, the first time the link is
	// torn down (connection error or explicit Close), on whichever
	// goroutine observes it first.
	OnInvalidate func()
}

// New wraps an established connection to the agent.
func New(conn *ipc.Conn) *Link {
	return &Link{conn: conn}
}

// RegisterRelaunchBundlePath asks the agent to resolve the process
// identifier that will later need to terminate before stage 3 can run.
// It blocks for the agent's reply or until ctx is done.
func (l *Link) RegisterRelaunchBundlePath(ctx context.Context, path string) (int, error) {
	type result struct {
		pid int
		err error
	}
	done := make(chan result, 1)
	go func() {
		if err := l.conn.Send(ipc.Message{ID: ipc.RegisterRelaunchBundlePath, Payload: []byte(path)}); err != nil {
			done <- result{err: err}
			return
		}
		msg, err := l.conn.Recv()
		if err != nil {
			done <- result{err: err}
			return
		}
		if msg.ID != ipc.RelaunchBundlePathRegistered || len(msg.Payload) != 4 {
			done <- result{err: fmt.Errorf("agentlink: unexpected reply %s", msg.ID)}
			return
		}
		done <- result{pid: int(binary.BigEndian.Uint32(msg.Payload))}
	}()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return 0, l.fail(r.err)
		}
		return r.pid, nil
	}
}

// RegisterInstallationInfo publishes an encoded InstallationInfo object
// so the agent can broadcast discovery of the pending install.
func (l *Link) RegisterInstallationInfo(payload []byte) error {
	return l.send(ipc.RegisterInstallationInfo, payload)
}

// ShowProgress asks the agent to display its progress window.
func (l *Link) ShowProgress() error { return l.send(ipc.ShowProgress, nil) }

// StopProgress asks the agent to hide its progress window.
func (l *Link) StopProgress() error { return l.send(ipc.StopProgress, nil) }

// RelaunchApp asks the agent to relaunch the application at path.
func (l *Link) RelaunchApp(path string) error {
	return l.send(ipc.Relaunch, []byte(path))
}

func (l *Link) send(id ipc.Identifier, payload []byte) error {
	if err := l.conn.Send(ipc.Message{ID: id, Payload: payload}); err != nil {
		return l.fail(err)
	}
	return nil
}

// fail marks the link invalidated and fires OnInvalidate once, then
// returns err unchanged for the caller to propagate.
func (l *Link) fail(err error) error {
	l.mu.Lock()
	already := l.invalidated
	l.invalidated = true
	l.mu.Unlock()

	if !already && l.OnInvalidate != nil {
		l.OnInvalidate()
	}
	return err
}

// Close tears the link down, firing OnInvalidate if it has not already
// fired.
func (l *Link) Close() error {
	err := l.conn.Close()
	l.fail(err)
	return err
}
