package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MCPbox metrics
var (
	// Gateway request counters
	MCPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcpbox",
			Name:      "mcp_requests_total",
			Help:      "Total number of MCP gateway requests",
		},
		[]string{"method", "status"},
	)

	// Gateway request duration histogram
	MCPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mcpbox",
			Name:      "mcp_request_duration_seconds",
			Help:      "MCP gateway request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"method"},
	)

	// Sandbox client calls
	SandboxRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcpbox",
			Name:      "sandbox_requests_total",
			Help:      "Total sandbox service calls",
		},
		[]string{"operation", "status"},
	)

	// Circuit breaker state (0=closed, 1=half_open, 2=open)
	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mcpbox",
			Name:      "circuit_breaker_state",
			Help:      "Sandbox circuit breaker state (0=closed, 1=half_open, 2=open)",
		},
	)

	// Activity log pressure
	ActivityLogsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mcpbox",
			Name:      "activity_logs_dropped_total",
			Help:      "Activity log entries dropped under backpressure",
		},
	)

	// Live stream pressure
	StreamEventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mcpbox",
			Name:      "stream_events_dropped_total",
			Help:      "Live stream events dropped due to full client queues",
		},
	)

	// Connected SSE clients
	SSEConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mcpbox",
			Name:      "sse_connections",
			Help:      "Currently connected SSE clients",
		},
	)

	// Failed authentication attempts
	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcpbox",
			Name:      "auth_failures_total",
			Help:      "Failed gateway authentication attempts",
		},
		[]string{"reason"},
	)
)

// RecordMCPRequest records one gateway request with its outcome and latency.
func RecordMCPRequest(method, status string, durationSec float64) {
	if method == "" {
		method = "unknown"
	}
	MCPRequestsTotal.WithLabelValues(method, status).Inc()
	MCPRequestDuration.WithLabelValues(method).Observe(durationSec)
}

// RecordSandboxRequest records one sandbox call outcome.
func RecordSandboxRequest(operation, status string) {
	SandboxRequestsTotal.WithLabelValues(operation, status).Inc()
}

// SetCircuitBreakerState publishes the breaker state as a gauge value.
func SetCircuitBreakerState(state string) {
	switch state {
	case "open":
		CircuitBreakerState.Set(2)
	case "half_open":
		CircuitBreakerState.Set(1)
	default:
		CircuitBreakerState.Set(0)
	}
}

// RecordDroppedActivityLogs counts entries discarded under backpressure.
func RecordDroppedActivityLogs(n int) {
	if n <= 0 {
		return
	}
	ActivityLogsDroppedTotal.Add(float64(n))
}

// RecordAuthFailure counts one failed authentication attempt.
func RecordAuthFailure(reason string) {
	AuthFailuresTotal.WithLabelValues(reason).Inc()
}
