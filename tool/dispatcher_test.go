package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/socketkit/errors"
	"github.com/c360/socketkit/socket"
	"github.com/c360/socketkit/testutil"
)

const waitFor = 2 * time.Second

func newTestDispatcher(t *testing.T) (*Dispatcher, *socket.Registry) {
	t.Helper()
	registry := socket.NewRegistry(socket.RegistryDeps{DialTimeout: time.Second})
	t.Cleanup(registry.Close)

	d, err := NewDispatcher(DispatcherDeps{Registry: registry})
	require.NoError(t, err)
	return d, registry
}

func dispatch(t *testing.T, d *Dispatcher, name Name, args string) any {
	t.Helper()
	result, err := d.Dispatch(context.Background(), string(name), json.RawMessage(args))
	require.NoError(t, err)
	return result
}

func connectTo(t *testing.T, d *Dispatcher, server *testutil.TCPServer, id string) string {
	t.Helper()
	args := fmt.Sprintf(`{"host": %q, "port": %d, "connection_id": %q}`,
		server.Host(), server.Port(), id)
	result := dispatch(t, d, ToolConnect, args).(ConnectResult)
	return result.ConnectionID
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestDispatcher_Tools(t *testing.T) {
	d, _ := newTestDispatcher(t)

	descriptors := d.Tools()
	require.Len(t, descriptors, 10)
	assert.Equal(t, ToolConnect, descriptors[0].Name)
	assert.Equal(t, ToolConnectionInfo, descriptors[9].Name)
	for _, desc := range descriptors {
		assert.NotEmpty(t, desc.Description, "tool %s", desc.Name)
		assert.True(t, json.Valid(desc.InputSchema), "tool %s", desc.Name)
	}
}

func TestDispatcher_UnknownTool(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(context.Background(), "tcp_frobnicate", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownTool))
	assert.Equal(t, "unknown_tool", ErrorCode(err))
}

func TestDispatcher_SchemaRejectsMissingRequired(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(context.Background(), string(ToolConnect),
		json.RawMessage(`{"host": "localhost"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestDispatcher_SchemaRejectsBadTypes(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(context.Background(), string(ToolConnect),
		json.RawMessage(`{"host": "localhost", "port": "not-a-number"}`))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestDispatcher_Connect(t *testing.T) {
	server := testutil.NewSinkServer(t)
	d, registry := newTestDispatcher(t)

	result := dispatch(t, d, ToolConnect,
		fmt.Sprintf(`{"host": %q, "port": %d}`, server.Host(), server.Port())).(ConnectResult)

	assert.True(t, result.Success)
	assert.NotEmpty(t, result.ConnectionID)
	assert.Equal(t, "connected", result.Status)
	assert.Equal(t, 1, registry.Count())
}

func TestDispatcher_ConnectFailure(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(context.Background(), string(ToolConnect),
		json.RawMessage(fmt.Sprintf(`{"host": "127.0.0.1", "port": %d}`, freePort(t))))
	require.Error(t, err)
	assert.Equal(t, "connection_failed", ErrorCode(err))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(err))
}

func TestDispatcher_ConnectDuplicate(t *testing.T) {
	server := testutil.NewSinkServer(t)
	d, _ := newTestDispatcher(t)
	connectTo(t, d, server, "dup")

	_, err := d.Dispatch(context.Background(), string(ToolConnect),
		json.RawMessage(fmt.Sprintf(`{"host": %q, "port": %d, "connection_id": "dup"}`,
			server.Host(), server.Port())))
	require.Error(t, err)
	assert.Equal(t, "duplicate_id", ErrorCode(err))
	assert.Equal(t, http.StatusConflict, HTTPStatus(err))
}

func TestDispatcher_Disconnect(t *testing.T) {
	server := testutil.NewSinkServer(t)
	d, registry := newTestDispatcher(t)
	id := connectTo(t, d, server, "")

	result := dispatch(t, d, ToolDisconnect,
		fmt.Sprintf(`{"connection_id": %q}`, id)).(DisconnectResult)

	assert.True(t, result.Success)
	assert.Equal(t, "disconnected", result.Status)
	assert.Equal(t, 0, registry.Count())

	_, err := d.Dispatch(context.Background(), string(ToolDisconnect),
		json.RawMessage(fmt.Sprintf(`{"connection_id": %q}`, id)))
	require.Error(t, err)
	assert.Equal(t, "not_found", ErrorCode(err))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(err))
}

func TestDispatcher_SendText(t *testing.T) {
	server := testutil.NewSinkServer(t)
	d, _ := newTestDispatcher(t)
	id := connectTo(t, d, server, "")

	result := dispatch(t, d, ToolSend,
		fmt.Sprintf(`{"connection_id": %q, "data": "hello", "terminator": "0D0A"}`, id)).(SendResult)

	assert.True(t, result.Success)
	assert.Equal(t, 7, result.BytesSent)
	assert.Eventually(t, func() bool {
		return bytes.Equal(server.Received(), []byte("hello\r\n"))
	}, waitFor, 10*time.Millisecond)
}

func TestDispatcher_SendHex(t *testing.T) {
	server := testutil.NewSinkServer(t)
	d, _ := newTestDispatcher(t)
	id := connectTo(t, d, server, "")

	result := dispatch(t, d, ToolSend,
		fmt.Sprintf(`{"connection_id": %q, "data": "0x48 0x49", "encoding": "hex"}`, id)).(SendResult)

	assert.Equal(t, 2, result.BytesSent)
	assert.Eventually(t, func() bool {
		return bytes.Equal(server.Received(), []byte("HI"))
	}, waitFor, 10*time.Millisecond)
}

func TestDispatcher_SendInvalidBase64(t *testing.T) {
	server := testutil.NewSinkServer(t)
	d, _ := newTestDispatcher(t)
	id := connectTo(t, d, server, "")

	_, err := d.Dispatch(context.Background(), string(ToolSend),
		json.RawMessage(fmt.Sprintf(`{"connection_id": %q, "data": "!!!", "encoding": "base64"}`, id)))
	require.Error(t, err)
	assert.Equal(t, "invalid_encoding", ErrorCode(err))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestDispatcher_SendUnknownConnection(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(context.Background(), string(ToolSend),
		json.RawMessage(`{"connection_id": "nope", "data": "x"}`))
	require.Error(t, err)
	assert.Equal(t, "not_found", ErrorCode(err))
}

func TestDispatcher_ReadBuffer(t *testing.T) {
	server := testutil.NewScriptedServer(t, []byte("payload"))
	d, registry := newTestDispatcher(t)
	id := connectTo(t, d, server, "")

	conn, err := registry.Get(id)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return conn.BufferInfo().Chunks >= 1
	}, waitFor, 10*time.Millisecond)

	result := dispatch(t, d, ToolReadBuffer,
		fmt.Sprintf(`{"connection_id": %q}`, id)).(ReadBufferResult)
	assert.Equal(t, "utf-8", result.Format)
	require.NotEmpty(t, result.Data)
	assert.Equal(t, "payload", result.Data[0])

	hexResult := dispatch(t, d, ToolReadBuffer,
		fmt.Sprintf(`{"connection_id": %q, "format": "hex"}`, id)).(ReadBufferResult)
	assert.Equal(t, "7061796c6f6164", hexResult.Data[0])
}

func TestDispatcher_ReadBufferRange(t *testing.T) {
	server := testutil.NewSinkServer(t)
	d, _ := newTestDispatcher(t)
	id := connectTo(t, d, server, "")

	result := dispatch(t, d, ToolReadBuffer,
		fmt.Sprintf(`{"connection_id": %q, "index": 5, "count": 3}`, id)).(ReadBufferResult)
	assert.Equal(t, 0, result.Chunks)
	assert.Empty(t, result.Data)
}

func TestDispatcher_ClearBufferAndInfo(t *testing.T) {
	server := testutil.NewScriptedServer(t, []byte("stale"))
	d, registry := newTestDispatcher(t)
	id := connectTo(t, d, server, "")

	conn, err := registry.Get(id)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return conn.BufferInfo().Chunks >= 1
	}, waitFor, 10*time.Millisecond)

	cleared := dispatch(t, d, ToolClearBuffer,
		fmt.Sprintf(`{"connection_id": %q}`, id)).(ClearBufferResult)
	assert.True(t, cleared.BufferCleared)

	info := dispatch(t, d, ToolBufferInfo,
		fmt.Sprintf(`{"connection_id": %q}`, id)).(socket.BufferInfo)
	assert.Equal(t, 0, info.Chunks)
	assert.Equal(t, int64(5), info.BytesReceived)
	assert.True(t, info.Connected)
}

func TestDispatcher_SetTriggerActive(t *testing.T) {
	server := testutil.NewSinkServer(t)
	d, registry := newTestDispatcher(t)
	id := connectTo(t, d, server, "")

	result := dispatch(t, d, ToolSetTrigger, fmt.Sprintf(
		`{"connection_id": %q, "trigger_id": "pong", "pattern": "PING", "response": "PONG", "response_terminator": "0D0A"}`,
		id)).(SetTriggerResult)

	assert.True(t, result.Success)
	assert.Equal(t, "active", result.Status)

	conn, err := registry.Get(id)
	require.NoError(t, err)
	triggers := conn.Triggers()
	require.Len(t, triggers, 1)
	// Response stored fully encoded: PONG plus CRLF.
	assert.Equal(t, 6, triggers[0].ResponseSize)
}

func TestDispatcher_SetTriggerPending(t *testing.T) {
	d, registry := newTestDispatcher(t)

	result := dispatch(t, d, ToolSetTrigger,
		`{"connection_id": "future", "trigger_id": "t1", "pattern": "OK", "response": "ACK"}`).(SetTriggerResult)

	assert.Equal(t, "pending", result.Status)
	assert.NotEmpty(t, result.Message)
	assert.Equal(t, 1, registry.PendingCount("future"))
}

func TestDispatcher_SetTriggerInvalidPattern(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(context.Background(), string(ToolSetTrigger),
		json.RawMessage(`{"connection_id": "x", "trigger_id": "t", "pattern": "[bad", "response": "r"}`))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestDispatcher_RemoveTrigger(t *testing.T) {
	server := testutil.NewSinkServer(t)
	d, _ := newTestDispatcher(t)
	id := connectTo(t, d, server, "")

	dispatch(t, d, ToolSetTrigger, fmt.Sprintf(
		`{"connection_id": %q, "trigger_id": "t1", "pattern": "X", "response": "Y"}`, id))

	removed := dispatch(t, d, ToolRemoveTrigger,
		fmt.Sprintf(`{"connection_id": %q, "trigger_id": "t1"}`, id)).(RemoveTriggerResult)
	assert.Equal(t, "removed_active", removed.Status)

	_, err := d.Dispatch(context.Background(), string(ToolRemoveTrigger),
		json.RawMessage(fmt.Sprintf(`{"connection_id": %q, "trigger_id": "t1"}`, id)))
	require.Error(t, err)
	assert.Equal(t, "not_found", ErrorCode(err))
}

func TestDispatcher_RemoveTriggerPending(t *testing.T) {
	d, _ := newTestDispatcher(t)

	dispatch(t, d, ToolSetTrigger,
		`{"connection_id": "future", "trigger_id": "t1", "pattern": "X", "response": "Y"}`)

	removed := dispatch(t, d, ToolRemoveTrigger,
		`{"connection_id": "future", "trigger_id": "t1"}`).(RemoveTriggerResult)
	assert.Equal(t, "removed_pending", removed.Status)
}

func TestDispatcher_ListConnections(t *testing.T) {
	server := testutil.NewSinkServer(t)
	d, _ := newTestDispatcher(t)

	empty := dispatch(t, d, ToolListConns, `{}`).(ListConnectionsResult)
	assert.Equal(t, 0, empty.TotalConnections)

	connectTo(t, d, server, "b-conn")
	connectTo(t, d, server, "a-conn")

	result := dispatch(t, d, ToolListConns, ``).(ListConnectionsResult)
	require.Equal(t, 2, result.TotalConnections)
	assert.Equal(t, "a-conn", result.Connections[0].ConnectionID)
	assert.Equal(t, "b-conn", result.Connections[1].ConnectionID)
}

func TestDispatcher_ConnectionInfo(t *testing.T) {
	server := testutil.NewSinkServer(t)
	d, _ := newTestDispatcher(t)
	id := connectTo(t, d, server, "")

	info := dispatch(t, d, ToolConnectionInfo,
		fmt.Sprintf(`{"connection_id": %q}`, id)).(socket.ConnectionInfo)
	assert.Equal(t, id, info.ConnectionID)
	assert.Equal(t, server.Port(), info.Port)
	assert.True(t, info.Connected)

	_, err := d.Dispatch(context.Background(), string(ToolConnectionInfo),
		json.RawMessage(`{"connection_id": "missing"}`))
	require.Error(t, err)
	assert.Equal(t, "not_found", ErrorCode(err))
}
