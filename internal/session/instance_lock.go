package session

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"installerd/internal/termination"
)

// ErrInstanceLockBusy is returned when another live installerd process
// already holds the lock for this identifier.
var ErrInstanceLockBusy = errors.New("session: another installerd instance holds the lock for this identifier")

// lockData is the JSON payload written to the lock file, adapted from
// the teacher's LockData to use the shared termination package for
// liveness and PID-reuse detection instead of a per-OS procutil pair.
type lockData struct {
	PID            int   `json:"pid"`
	OwnerStartTime int64 `json:"owner_start_time,omitempty"`
}

// InstanceLock guards one installerd process per host bundle identifier
// via a hard-linked lock file, the same atomic-create idiom the teacher
// used for its update lock.
type InstanceLock struct {
	path string
}

// NewInstanceLock returns a lock controller for the lock file path.
func NewInstanceLock(path string) *InstanceLock {
	return &InstanceLock{path: path}
}

// Acquire takes the lock for the current process, removing and
// re-acquiring over a stale lock (dead owner, or owner PID recycled by an
// unrelated process) exactly once.
func (l *InstanceLock) Acquire() error {
	data := lockData{PID: os.Getpid()}
	if start, err := termination.StartTime(os.Getpid()); err == nil {
		data.OwnerStartTime = start
	}

	content, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("session: marshal lock data: %w", err)
	}

	if err := l.tryLink(content); err == nil {
		return nil
	} else if !os.IsExist(err) {
		return fmt.Errorf("session: create lock: %w", err)
	}

	stale, _ := l.isStale()
	if !stale {
		return ErrInstanceLockBusy
	}

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("session: remove stale lock: %w", err)
	}

	if err := l.tryLink(content); err != nil {
		if os.IsExist(err) {
			return ErrInstanceLockBusy
		}
		return fmt.Errorf("session: create lock: %w", err)
	}
	return nil
}

// Release removes the lock file if owned by the current process. Safe to
// call when no lock was ever acquired.
func (l *InstanceLock) Release() error {
	content, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("session: read lock: %w", err)
	}

	var d lockData
	if err := json.Unmarshal(content, &d); err != nil {
		return os.Remove(l.path)
	}
	if d.PID != os.Getpid() {
		return fmt.Errorf("session: lock not owned by this process")
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("session: remove lock: %w", err)
	}
	return nil
}

func (l *InstanceLock) tryLink(content []byte) error {
	suffix, err := randomHex(8)
	if err != nil {
		return err
	}
	tmp := l.path + "." + suffix
	if err := os.WriteFile(tmp, content, 0600); err != nil {
		return err
	}
	defer os.Remove(tmp)
	return os.Link(tmp, l.path)
}

func (l *InstanceLock) isStale() (bool, error) {
	content, err := os.ReadFile(l.path)
	if err != nil {
		return false, err
	}
	var d lockData
	if err := json.Unmarshal(content, &d); err != nil {
		return true, nil
	}

	if !termination.Alive(d.PID) {
		return true, nil
	}
	if d.OwnerStartTime == 0 {
		return false, nil
	}
	start, err := termination.StartTime(d.PID)
	if err != nil || start != d.OwnerStartTime {
		return true, nil
	}
	return false, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
