package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// DefaultLogDir is where per-identifier installer logs are written; every
// log line is also written to stderr.
const DefaultLogDir = "/var/log/installerd"

// newLogger creates a structured JSON logger that writes to both a
// per-identifier log file (append mode) and stderr, the same shape as the
// teacher's upgrade.NewLogger. Returns the logger and a cleanup function
// that closes the log file.
func newLogger(identifier string) (*slog.Logger, func(), error) {
	logPath := filepath.Join(DefaultLogDir, identifier+".log")

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, nil, err
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}

	w := io.MultiWriter(f, os.Stderr)
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})).
		With("identifier", identifier)

	cleanup := func() { f.Close() }
	return logger, cleanup, nil
}
