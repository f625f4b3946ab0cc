package main

import (
	"log/slog"
	"net"
	"os"
)

// listenUnix removes any stale socket file at path and starts listening on
// it, matching how a long-running unix-socket server typically takes over
// a path left behind by a crashed predecessor (the instance lock already
// guarantees no live owner remains).
func listenUnix(path string) (*net.UnixListener, error) {
	_ = os.Remove(path)
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, err
	}
	l, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, err
	}
	_ = os.Chmod(path, 0600)
	return l, nil
}

// serveConnections accepts connections on l until it is closed, handing
// each one to handle. Only one connection is ever meaningful at a time for
// either endpoint; accept failures after a close are expected and logged
// at debug level rather than treated as fatal.
func serveConnections(logger *slog.Logger, l *net.UnixListener, handle func(net.Conn)) {
	for {
		conn, err := l.Accept()
		if err != nil {
			logger.Debug("installerd: listener closed", "err", err)
			return
		}
		handle(conn)
	}
}
