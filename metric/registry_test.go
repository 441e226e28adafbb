package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/socketkit/errors"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NotNil(t, registry.PrometheusRegistry())
	require.NotNil(t, registry.CoreMetrics())

	// Core metrics are registered and gatherable.
	registry.CoreMetrics().ServiceUp.Set(1)
	registry.CoreMetrics().ToolRequests.WithLabelValues("tcp_connect").Inc()

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["socketkit_service_up"])
	assert.True(t, names["socketkit_tool_requests_total"])
}

func TestRegisterCounter_Duplicate(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "socketkit",
		Name:      "test_total",
	})
	require.NoError(t, registry.RegisterCounter("svc", "test_total", counter))

	other := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "socketkit",
		Name:      "other_total",
	})
	err := registry.RegisterCounter("svc", "test_total", other)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestUnregister(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "socketkit",
		Name:      "test_gauge",
	})
	require.NoError(t, registry.RegisterGauge("svc", "test_gauge", gauge))

	assert.True(t, registry.Unregister("svc", "test_gauge"))
	assert.False(t, registry.Unregister("svc", "test_gauge"))

	// Name is free again after unregistering.
	assert.NoError(t, registry.RegisterGauge("svc", "test_gauge", gauge))
}

func TestServer_Defaults(t *testing.T) {
	server := NewServer(0, "", NewMetricsRegistry())
	assert.Equal(t, "http://localhost:9090/metrics", server.Address())
}

func TestServer_StopWithoutStart(t *testing.T) {
	server := NewServer(9091, "/metrics", NewMetricsRegistry())
	assert.NoError(t, server.Stop())
}
