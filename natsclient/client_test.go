package natsclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Defaults(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
	assert.Equal(t, -1, client.maxReconnects)
	assert.Equal(t, 2*time.Second, client.reconnectWait)
	assert.Nil(t, client.GetConnection())
}

func TestNewClient_Options(t *testing.T) {
	client, err := NewClient("nats://broker:4222",
		WithName("socketkit"),
		WithMaxReconnects(5),
		WithReconnectWait(time.Second),
		WithTimeout(3*time.Second),
		WithCredentials("user", "pass"),
	)
	require.NoError(t, err)

	assert.Equal(t, "socketkit", client.clientName)
	assert.Equal(t, 5, client.maxReconnects)
	assert.Equal(t, time.Second, client.reconnectWait)
	assert.Equal(t, 3*time.Second, client.timeout)
	assert.Equal(t, "user", client.username)
}

func TestConnectionStatus_String(t *testing.T) {
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "connecting", StatusConnecting.String())
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "reconnecting", StatusReconnecting.String())
	assert.Equal(t, "unknown", ConnectionStatus(99).String())
}

func TestPublish_NotConnected(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	err = client.Publish("subject", []byte("data"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSubscribe_NotConnected(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	_, err = client.Subscribe("subject", nil)
	require.Error(t, err)

	_, err = client.QueueSubscribe("subject", "queue", nil)
	require.Error(t, err)
}

func TestClose_Idempotent(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithToken("secret"))
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	// Credentials cleared, further connects rejected.
	assert.Empty(t, client.token)
	assert.Error(t, client.Connect(t.Context()))
}

func TestBuildConnectionOptions(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithName("socketkit"),
		WithToken("tok"),
	)
	require.NoError(t, err)

	opts := client.buildConnectionOptions()
	// Base handler options plus token and name.
	assert.GreaterOrEqual(t, len(opts), 10)
}
