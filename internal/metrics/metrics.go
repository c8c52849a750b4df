// Package metrics exposes the runtime's process-scoped Prometheus gauges
// and counters: MCP pool cache stats, session-gate occupancy, job-manager
// queue depth. The gateway updates the session-gate and job collectors; the
// MCP collectors (cache hits/misses, in-flight calls, tool-call duration)
// are registered but the MCP pool does not update them.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the runtime's metric collectors so components can be
// constructed with one value instead of threading individual collectors
// through every constructor.
type Registry struct {
	MCPCacheHits     prometheus.Counter
	MCPCacheMisses   prometheus.Counter
	MCPInFlight      *prometheus.GaugeVec
	SessionGateHeld  prometheus.Gauge
	JobsQueued       prometheus.Gauge
	JobsRunning      prometheus.Gauge
	JobsCompleted    *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec
}

// NewRegistry constructs and registers all collectors against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		MCPCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentcore", Subsystem: "mcp", Name: "list_cache_hits_total",
			Help: "tools/list cache hits",
		}),
		MCPCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentcore", Subsystem: "mcp", Name: "list_cache_misses_total",
			Help: "tools/list cache misses",
		}),
		MCPInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "agentcore", Subsystem: "mcp", Name: "inflight_calls",
			Help: "in-flight MCP calls by server",
		}, []string{"server"}),
		SessionGateHeld: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentcore", Subsystem: "dispatch", Name: "session_gates_held",
			Help: "number of session gates currently held",
		}),
		JobsQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentcore", Subsystem: "jobs", Name: "queued",
			Help: "background jobs currently queued",
		}),
		JobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentcore", Subsystem: "jobs", Name: "running",
			Help: "background jobs currently running",
		}),
		JobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore", Subsystem: "jobs", Name: "completed_total",
			Help: "completed background jobs by terminal kind",
		}, []string{"kind"}),
		ToolCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentcore", Subsystem: "mcp", Name: "tool_call_seconds",
			Help: "MCP tool call latency", Buckets: prometheus.DefBuckets,
		}, []string{"server", "tool"}),
	}
	reg.MustRegister(
		r.MCPCacheHits, r.MCPCacheMisses, r.MCPInFlight,
		r.SessionGateHeld, r.JobsQueued, r.JobsRunning, r.JobsCompleted,
		r.ToolCallDuration,
	)
	return r
}
