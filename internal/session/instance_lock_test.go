package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceLock_AcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "com.example.app.lock")
	l := NewInstanceLock(path)

	require.NoError(t, l.Acquire())
	_, err := os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, l.Release())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestInstanceLock_RejectsWhileHeldByLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "com.example.app.lock")
	data, err := json.Marshal(map[string]int{"pid": os.Getpid()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))

	l := NewInstanceLock(path)
	err = l.Acquire()
	assert.ErrorIs(t, err, ErrInstanceLockBusy)
}

func TestInstanceLock_ReclaimsStaleLockFromDeadProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "com.example.app.lock")
	data, err := json.Marshal(map[string]int{"pid": 999999})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))

	l := NewInstanceLock(path)
	assert.NoError(t, l.Acquire())
}

func TestInstanceLock_Release_IsIdempotentWhenNeverAcquired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "com.example.app.lock")
	l := NewInstanceLock(path)
	assert.NoError(t, l.Release())
}
