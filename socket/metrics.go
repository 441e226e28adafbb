package socket

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/socketkit/metric"
)

// Metrics holds Prometheus instruments shared by all connections owned by
// one Registry.
type Metrics struct {
	connectionsOpened prometheus.Counter
	connectFailures   prometheus.Counter
	connectionsActive prometheus.Gauge
	bytesSent         prometheus.Counter
	bytesReceived     prometheus.Counter
	chunksReceived    prometheus.Counter
	triggerMatches    prometheus.Counter
	socketErrors      prometheus.Counter
}

// NewMetrics creates and registers socket metrics. Returns nil when no
// registry is provided (nil input = nil feature pattern), so callers can
// instrument unconditionally.
func NewMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		connectionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "socketkit",
			Subsystem: "tcp",
			Name:      "connections_opened_total",
			Help:      "Total TCP connections successfully established",
		}),
		connectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "socketkit",
			Subsystem: "tcp",
			Name:      "connect_failures_total",
			Help:      "Total failed TCP connection attempts",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "socketkit",
			Subsystem: "tcp",
			Name:      "connections_active",
			Help:      "Currently connected TCP sessions",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "socketkit",
			Subsystem: "tcp",
			Name:      "bytes_sent_total",
			Help:      "Total bytes written to TCP peers",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "socketkit",
			Subsystem: "tcp",
			Name:      "bytes_received_total",
			Help:      "Total bytes read from TCP peers",
		}),
		chunksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "socketkit",
			Subsystem: "tcp",
			Name:      "chunks_received_total",
			Help:      "Total buffer chunks appended by receive loops",
		}),
		triggerMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "socketkit",
			Subsystem: "tcp",
			Name:      "trigger_matches_total",
			Help:      "Total trigger pattern matches on inbound chunks",
		}),
		socketErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "socketkit",
			Subsystem: "tcp",
			Name:      "socket_errors_total",
			Help:      "Socket read/write errors encountered",
		}),
	}

	const serviceName = "socket"
	if err := registry.RegisterCounter(serviceName, "connections_opened", m.connectionsOpened); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(serviceName, "connect_failures", m.connectFailures); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(serviceName, "connections_active", m.connectionsActive); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(serviceName, "bytes_sent", m.bytesSent); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(serviceName, "bytes_received", m.bytesReceived); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(serviceName, "chunks_received", m.chunksReceived); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(serviceName, "trigger_matches", m.triggerMatches); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(serviceName, "socket_errors", m.socketErrors); err != nil {
		return nil, err
	}

	return m, nil
}
