package nats

import (
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/socketkit/natsclient"
	"github.com/c360/socketkit/socket"
	"github.com/c360/socketkit/testutil"
	"github.com/c360/socketkit/tool"
)

func newTestGateway(t *testing.T) (*Gateway, *socket.Registry) {
	t.Helper()

	registry := socket.NewRegistry(socket.RegistryDeps{DialTimeout: time.Second})
	t.Cleanup(registry.Close)

	dispatcher, err := tool.NewDispatcher(tool.DispatcherDeps{Registry: registry})
	require.NoError(t, err)

	client, err := natsclient.NewClient("nats://localhost:4222")
	require.NoError(t, err)

	gateway, err := NewGateway(GatewayDeps{
		Client:        client,
		Dispatcher:    dispatcher,
		SubjectPrefix: "socketkit",
	})
	require.NoError(t, err)
	return gateway, registry
}

func TestNewGateway_Validation(t *testing.T) {
	registry := socket.NewRegistry(socket.RegistryDeps{})
	t.Cleanup(registry.Close)
	dispatcher, err := tool.NewDispatcher(tool.DispatcherDeps{Registry: registry})
	require.NoError(t, err)
	client, err := natsclient.NewClient("nats://localhost:4222")
	require.NoError(t, err)

	_, err = NewGateway(GatewayDeps{Dispatcher: dispatcher, SubjectPrefix: "x"})
	assert.Error(t, err, "nil client")

	_, err = NewGateway(GatewayDeps{Client: client, SubjectPrefix: "x"})
	assert.Error(t, err, "nil dispatcher")

	_, err = NewGateway(GatewayDeps{Client: client, Dispatcher: dispatcher})
	assert.Error(t, err, "empty prefix")

	g, err := NewGateway(GatewayDeps{Client: client, Dispatcher: dispatcher, SubjectPrefix: "x"})
	require.NoError(t, err)
	assert.Equal(t, "socketkit-tools", g.queueGroup)
}

func TestToolNameFromSubject(t *testing.T) {
	tests := []struct {
		subject string
		want    string
	}{
		{"socketkit.tool.tcp_connect", "tcp_connect"},
		{"org.platform.tool.tcp_send", "tcp_send"},
		{"tcp_send", "tcp_send"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toolNameFromSubject(tt.subject))
	}
}

func TestGateway_HandleMessageWithoutReply(t *testing.T) {
	// No reply subject: the tool still executes for its side effects.
	server := testutil.NewSinkServer(t)
	gateway, registry := newTestGateway(t)

	args := fmt.Sprintf(`{"host": %q, "port": %d, "connection_id": "via-nats"}`,
		server.Host(), server.Port())
	gateway.handleMessage(&nats.Msg{
		Subject: "socketkit.tool.tcp_connect",
		Data:    []byte(args),
	})

	assert.Equal(t, 1, registry.Count())
	conn, err := registry.Get("via-nats")
	require.NoError(t, err)
	assert.True(t, conn.Connected())
}

func TestGateway_StopWithoutStart(t *testing.T) {
	gateway, _ := newTestGateway(t)
	assert.NoError(t, gateway.Stop())
}
