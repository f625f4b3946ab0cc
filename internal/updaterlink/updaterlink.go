// Package updaterlink implements the updater-facing side of the protocol
// (spec §4.3): a server endpoint that accepts exactly one concurrent
// connection, dispatches inbound messages to the stage controller, and
// distinguishes fatal from tolerated disconnection depending on whether
// the installation has entered its "about to complete" phase.
package updaterlink

import (
	"errors"
	"io"
	"sync"

	"installerd/internal/ipc"
)

// ErrAlreadyConnected is returned by Server.Accept when a connection is
// already active; the caller should reject and close the new one.
var ErrAlreadyConnected = errors.New("updaterlink: a connection is already active")

// Server accepts at most one concurrent updater connection.
type Server struct {
	mu      sync.Mutex
	current *Link
}

// NewServer returns an empty Server.
func NewServer() *Server { return &Server{} }

// Accept wraps rw as the active Link, or returns ErrAlreadyConnected if a
// connection is already active. Accept does not close rw; the caller is
// expected to close it on ErrAlreadyConnected.
func (s *Server) Accept(rw io.ReadWriteCloser) (*Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return nil, ErrAlreadyConnected
	}

	link := &Link{conn: ipc.NewConn(rw), server: s}
	s.current = link
	return link, nil
}

// Current returns the active link, or nil if none is connected.
func (s *Server) Current() *Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Server) clear(link *Link) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == link {
		s.current = nil
	}
}

// Link is the single active updater connection.
type Link struct {
	conn   *ipc.Conn
	server *Server

	mu                       sync.Mutex
	willCompleteInstallation bool
	invalidated              bool

	// OnMessage dispatches an inbound message to the stage controller.
	OnMessage func(ipc.Message)

	// OnFatalInvalidate fires when the link drops before
	// SetWillCompleteInstallation was ever called — spec's
	// "unexpected invalidation before about-to-complete is fatal".
	// It never fires for invalidation observed afterward.
	OnFatalInvalidate func(err error)
}

// Send delivers a message to the updater.
func (l *Link) Send(id ipc.Identifier, payload []byte) error {
	return l.conn.Send(ipc.Message{ID: id, Payload: payload})
}

// SetWillCompleteInstallation marks that installation has reached the top
// of stage 1 execution; invalidation from this point on is tolerated
// rather than fatal.
func (l *Link) SetWillCompleteInstallation() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.willCompleteInstallation = true
}

// Serve reads inbound messages until the connection errors, dispatching
// each to OnMessage, then invalidates. Intended to run on its own
// goroutine for the lifetime of the connection.
func (l *Link) Serve() {
	for {
		msg, err := l.conn.Recv()
		if err != nil {
			l.invalidate(err)
			return
		}
		if l.OnMessage != nil {
			l.OnMessage(msg)
		}
	}
}

func (l *Link) invalidate(err error) {
	l.mu.Lock()
	already := l.invalidated
	l.invalidated = true
	tolerated := l.willCompleteInstallation
	l.mu.Unlock()

	l.server.clear(l)

	if !already && !tolerated && l.OnFatalInvalidate != nil {
		l.OnFatalInvalidate(err)
	}
}

// Close tears the connection down explicitly (e.g. during the stage
// controller's exit cleanup).
func (l *Link) Close() error {
	err := l.conn.Close()
	l.invalidate(err)
	return err
}
