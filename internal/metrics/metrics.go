// Package metrics exposes the handful of Prometheus counters/gauges that
// describe tool, job, and rate-limit activity, scraped from the HTTP
// transport's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns a private registry so metric registration never touches
// the global default registry shared with other packages in the process.
type Collector struct {
	registry *prometheus.Registry

	toolInvocations  *prometheus.CounterVec
	rateLimitedTotal *prometheus.CounterVec
	jobsTotal        *prometheus.CounterVec
	jobQueueRejected prometheus.Counter
	activeJobs       prometheus.Gauge
}

// New builds a Collector and registers its metrics.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		toolInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_tool_invocations_total",
			Help: "Total tool invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		rateLimitedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_tool_rate_limited_total",
			Help: "Total tool invocations rejected by the rate limiter, by tool name.",
		}, []string{"tool"}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_jobs_total",
			Help: "Total batch jobs reaching a terminal state, by status.",
		}, []string{"status"}),
		jobQueueRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcp_job_queue_rejected_total",
			Help: "Total job submissions rejected because the worker pool queue was full.",
		}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcp_jobs_active",
			Help: "Number of batch jobs currently PENDING or RUNNING.",
		}),
	}

	reg.MustRegister(c.toolInvocations, c.rateLimitedTotal, c.jobsTotal, c.jobQueueRejected, c.activeJobs)
	return c
}

// Registry returns the Prometheus registry backing this Collector, for
// mounting behind promhttp.HandlerFor.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ToolInvoked records one tool invocation outcome.
func (c *Collector) ToolInvoked(tool string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.toolInvocations.WithLabelValues(tool, outcome).Inc()
}

// RateLimited records one rate-limit rejection for tool.
func (c *Collector) RateLimited(tool string) {
	c.rateLimitedTotal.WithLabelValues(tool).Inc()
}

// JobStarted increments the active-jobs gauge.
func (c *Collector) JobStarted() {
	c.activeJobs.Inc()
}

// JobTerminal decrements the active-jobs gauge and records the terminal
// status (COMPLETED or FAILED) jobsTotal was reached with.
func (c *Collector) JobTerminal(status string) {
	c.activeJobs.Dec()
	c.jobsTotal.WithLabelValues(status).Inc()
}

// JobQueueRejected records one job submission rejected for a full queue.
func (c *Collector) JobQueueRejected() {
	c.jobQueueRejected.Inc()
}
