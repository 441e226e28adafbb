package socket

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/socketkit/errors"
	"github.com/c360/socketkit/testutil"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(RegistryDeps{DialTimeout: time.Second})
	t.Cleanup(r.Close)
	return r
}

func TestRegistry_OpenGeneratesID(t *testing.T) {
	server := testutil.NewSinkServer(t)
	r := newTestRegistry(t)

	conn, err := r.Open(context.Background(), "", server.Host(), server.Port())
	require.NoError(t, err)
	assert.NotEmpty(t, conn.ID())
	assert.True(t, conn.Connected())
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_OpenCustomID(t *testing.T) {
	server := testutil.NewSinkServer(t)
	r := newTestRegistry(t)

	conn, err := r.Open(context.Background(), "my-conn", server.Host(), server.Port())
	require.NoError(t, err)
	assert.Equal(t, "my-conn", conn.ID())

	got, err := r.Get("my-conn")
	require.NoError(t, err)
	assert.Same(t, conn, got)
}

func TestRegistry_OpenDuplicateID(t *testing.T) {
	server := testutil.NewSinkServer(t)
	r := newTestRegistry(t)

	_, err := r.Open(context.Background(), "dup", server.Host(), server.Port())
	require.NoError(t, err)

	_, err = r.Open(context.Background(), "dup", server.Host(), server.Port())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDuplicateID))
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_OpenInvalidPort(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Open(context.Background(), "", "127.0.0.1", 0)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_OpenConnectFailureLeavesNothing(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Open(context.Background(), "ghost", "127.0.0.1", freePort(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConnectFailed))
	assert.True(t, errors.IsTransient(err))

	// The failed id is free for reuse.
	assert.Equal(t, 0, r.Count())
	_, err = r.Get("ghost")
	assert.True(t, errors.IsNotFound(err))
}

func TestRegistry_GetNotFound(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Get("missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestRegistry_RemoveDisconnectsAndDeletes(t *testing.T) {
	server := testutil.NewSinkServer(t)
	r := newTestRegistry(t)

	conn, err := r.Open(context.Background(), "gone", server.Host(), server.Port())
	require.NoError(t, err)

	require.NoError(t, r.Remove("gone"))
	assert.Equal(t, StateDisconnected, conn.State())
	assert.Equal(t, 0, r.Count())

	assert.Error(t, r.Remove("gone"))
}

func TestRegistry_ListSorted(t *testing.T) {
	server := testutil.NewSinkServer(t)
	r := newTestRegistry(t)

	for _, id := range []string{"charlie", "alpha", "bravo"} {
		_, err := r.Open(context.Background(), id, server.Host(), server.Port())
		require.NoError(t, err)
	}

	infos := r.List()
	require.Len(t, infos, 3)
	assert.Equal(t, "alpha", infos[0].ConnectionID)
	assert.Equal(t, "bravo", infos[1].ConnectionID)
	assert.Equal(t, "charlie", infos[2].ConnectionID)
}

func TestRegistry_PendingTriggerReplay(t *testing.T) {
	server := testutil.NewScriptedServer(t, []byte("PING\r\n"))
	r := newTestRegistry(t)

	require.NoError(t, r.AddPending("later", "pong", `PING`, []byte("PONG\r\n")))
	assert.Equal(t, 1, r.PendingCount("later"))

	conn, err := r.Open(context.Background(), "later", server.Host(), server.Port())
	require.NoError(t, err)

	// Replay consumed the pending entry and activated the trigger.
	assert.Equal(t, 0, r.PendingCount("later"))
	assert.Equal(t, 1, conn.TriggerCount())

	assert.Eventually(t, func() bool {
		return bytes.Contains(server.Received(), []byte("PONG\r\n"))
	}, waitFor, 10*time.Millisecond)
}

func TestRegistry_AddPendingInvalidPattern(t *testing.T) {
	r := newTestRegistry(t)
	err := r.AddPending("later", "bad", "[unclosed", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Equal(t, 0, r.PendingCount("later"))
}

func TestRegistry_RemovePending(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.AddPending("later", "t1", "x", []byte("1")))
	assert.True(t, r.RemovePending("later", "t1"))
	assert.False(t, r.RemovePending("later", "t1"))
	assert.False(t, r.RemovePending("other", "t1"))
	assert.Equal(t, 0, r.PendingCount("later"))
}

func TestRegistry_Close(t *testing.T) {
	server := testutil.NewSinkServer(t)
	r := NewRegistry(RegistryDeps{DialTimeout: time.Second})

	conn, err := r.Open(context.Background(), "c1", server.Host(), server.Port())
	require.NoError(t, err)
	require.NoError(t, r.AddPending("future", "t1", "x", []byte("1")))

	r.Close()

	assert.Equal(t, 0, r.Count())
	assert.Equal(t, StateDisconnected, conn.State())
	assert.Equal(t, 0, r.PendingCount("future"))
}
