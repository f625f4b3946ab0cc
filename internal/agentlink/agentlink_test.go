package agentlink

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"installerd/internal/ipc"
)

func pipeConns(t *testing.T) (*ipc.Conn, *ipc.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })
	return ipc.NewConn(client), ipc.NewConn(server)
}

func TestLink_RegisterRelaunchBundlePath_ReturnsPID(t *testing.T) {
	daemonConn, agentConn := pipeConns(t)
	link := New(daemonConn)

	go func() {
		msg, err := agentConn.Recv()
		require.NoError(t, err)
		assert.Equal(t, ipc.RegisterRelaunchBundlePath, msg.ID)
		assert.Equal(t, "/Applications/Example.app", string(msg.Payload))

		payload := make([]byte, 4)
		binary.BigEndian.PutUint32(payload, 4242)
		require.NoError(t, agentConn.Send(ipc.Message{ID: ipc.RelaunchBundlePathRegistered, Payload: payload}))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pid, err := link.RegisterRelaunchBundlePath(ctx, "/Applications/Example.app")
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)
}

func TestLink_RegisterRelaunchBundlePath_TimesOut(t *testing.T) {
	daemonConn, agentConn := pipeConns(t)
	link := New(daemonConn)
	_ = agentConn

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := link.RegisterRelaunchBundlePath(ctx, "/Applications/Example.app")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLink_ShowProgress_StopProgress_Relaunch(t *testing.T) {
	daemonConn, agentConn := pipeConns(t)
	link := New(daemonConn)

	received := make(chan ipc.Message, 3)
	go func() {
		for i := 0; i < 3; i++ {
			msg, err := agentConn.Recv()
			require.NoError(t, err)
			received <- msg
		}
	}()

	require.NoError(t, link.ShowProgress())
	require.NoError(t, link.StopProgress())
	require.NoError(t, link.RelaunchApp("/Applications/Example.app"))

	assert.Equal(t, ipc.ShowProgress, (<-received).ID)
	assert.Equal(t, ipc.StopProgress, (<-received).ID)
	relaunch := <-received
	assert.Equal(t, ipc.Relaunch, relaunch.ID)
	assert.Equal(t, "/Applications/Example.app", string(relaunch.Payload))
}

func TestLink_Close_FiresOnInvalidateOnce(t *testing.T) {
	daemonConn, _ := pipeConns(t)
	link := New(daemonConn)

	calls := 0
	link.OnInvalidate = func() { calls++ }

	require.NoError(t, link.Close())
	assert.Equal(t, 1, calls)

	_ = link.send(ipc.ShowProgress, nil)
	assert.Equal(t, 1, calls)
}
