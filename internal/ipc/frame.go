package ipc

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// MaxPayloadSize bounds a single message payload to guard against a
// misbehaving or malicious peer declaring an enormous frame.
const MaxPayloadSize = 64 * 1024 * 1024

// ErrPayloadTooLarge is returned when a peer declares a frame larger than
// MaxPayloadSize.
var ErrPayloadTooLarge = errors.New("ipc: declared payload exceeds maximum frame size")

// ErrClosed is returned by Send after the Conn has been closed. Recv
// returns whatever error the closed stream reports.
var ErrClosed = errors.New("ipc: connection closed")

// Conn wraps a byte stream (typically a Unix domain socket) with the
// daemon's wire framing: a big-endian int32 identifier, a big-endian
// uint32 payload length, then the payload itself.
//
// Conn is safe for one concurrent reader and one concurrent writer (the
// shapes this protocol actually uses: a single receive loop and senders
// calling Send from the main scheduler goroutine).
type Conn struct {
	rw     io.ReadWriteCloser
	r      *bufio.Reader
	w      *bufio.Writer
	mu     sync.Mutex
	closed bool
}

// NewConn wraps rw (a net.Conn in production, an in-memory pipe in tests)
// with the daemon's framing.
func NewConn(rw io.ReadWriteCloser) *Conn {
	return &Conn{
		rw: rw,
		r:  bufio.NewReader(rw),
		w:  bufio.NewWriter(rw),
	}
}

// Send writes one framed message. Safe to call from several goroutines
// without additional synchronization from the caller, since Conn
// serializes writers internally.
func (c *Conn) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if len(msg.Payload) > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(msg.Payload))
	}

	var header [8]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(msg.ID))
	binary.BigEndian.PutUint32(header[4:8], uint32(len(msg.Payload)))

	if _, err := c.w.Write(header[:]); err != nil {
		return fmt.Errorf("ipc: write header: %w", err)
	}
	if len(msg.Payload) > 0 {
		if _, err := c.w.Write(msg.Payload); err != nil {
			return fmt.Errorf("ipc: write payload: %w", err)
		}
	}
	return c.w.Flush()
}

// Recv blocks until one framed message arrives, or returns an error (io.EOF
// when the peer has closed the connection cleanly).
func (c *Conn) Recv() (Message, error) {
	var header [8]byte
	if _, err := io.ReadFull(c.r, header[:]); err != nil {
		return Message{}, err
	}

	id := Identifier(binary.BigEndian.Uint32(header[0:4]))
	size := binary.BigEndian.Uint32(header[4:8])
	if size > MaxPayloadSize {
		return Message{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, size)
	}

	payload := make([]byte, size)
	if size > 0 {
		if _, err := io.ReadFull(c.r, payload); err != nil {
			return Message{}, fmt.Errorf("ipc: read payload: %w", err)
		}
	}

	return Message{ID: id, Payload: payload}, nil
}

// Close closes the underlying stream. Idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rw.Close()
}
