package metric

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the core service-level instruments shared across the tool
// dispatch path.
type Metrics struct {
	// ServiceUp is 1 while the service is running
	ServiceUp prometheus.Gauge

	// ToolRequests counts tool invocations by tool name
	ToolRequests *prometheus.CounterVec

	// ToolErrors counts failed tool invocations by tool name and error class
	ToolErrors *prometheus.CounterVec

	// ToolDuration observes tool handler latency by tool name
	ToolDuration *prometheus.HistogramVec
}

// NewMetrics creates the core service metrics (unregistered).
func NewMetrics() *Metrics {
	return &Metrics{
		ServiceUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "socketkit",
			Name:      "service_up",
			Help:      "Whether the service is running (1) or shutting down (0)",
		}),
		ToolRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "socketkit",
			Subsystem: "tool",
			Name:      "requests_total",
			Help:      "Total tool invocations by tool name",
		}, []string{"tool"}),
		ToolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "socketkit",
			Subsystem: "tool",
			Name:      "errors_total",
			Help:      "Total failed tool invocations by tool name and error class",
		}, []string{"tool", "class"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "socketkit",
			Subsystem: "tool",
			Name:      "duration_seconds",
			Help:      "Tool handler latency by tool name",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"tool"}),
	}
}
