// Package metrics exposes agent counters on a private prometheus
// registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for request and dispatch counters.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics owns its registry so independent instances never collide.
type Metrics struct {
	registry *prometheus.Registry

	providerRequests *prometheus.CounterVec
	providerSeconds  *prometheus.HistogramVec
	toolDispatches   *prometheus.CounterVec
	toolSeconds      *prometheus.HistogramVec
	approvals        *prometheus.CounterVec
	steps            prometheus.Histogram
}

// New builds a Metrics with all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		providerRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentd",
			Name:      "provider_requests_total",
			Help:      "Model provider requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		providerSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentd",
			Name:      "provider_request_seconds",
			Help:      "Model provider request latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"provider"}),
		toolDispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentd",
			Name:      "tool_dispatches_total",
			Help:      "Tool dispatches by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentd",
			Name:      "tool_dispatch_seconds",
			Help:      "Tool dispatch latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		approvals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentd",
			Name:      "approval_outcomes_total",
			Help:      "Arbiter outcomes for tool calls.",
		}, []string{"outcome"}),
		steps: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agentd",
			Name:      "deliberation_steps",
			Help:      "Deliberation steps consumed per chat turn.",
			Buckets:   prometheus.LinearBuckets(1, 1, 12),
		}),
	}
}

// ObserveProvider records one provider round trip.
func (m *Metrics) ObserveProvider(provider string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.providerRequests.WithLabelValues(provider, outcome).Inc()
	m.providerSeconds.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveTool records one tool dispatch. A dispatch that returned an
// error payload counts as an error outcome.
func (m *Metrics) ObserveTool(tool string, elapsed time.Duration, failed bool) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if failed {
		outcome = OutcomeError
	}
	m.toolDispatches.WithLabelValues(tool, outcome).Inc()
	m.toolSeconds.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// CountApproval records one arbiter outcome.
func (m *Metrics) CountApproval(outcome string) {
	if m == nil {
		return
	}
	m.approvals.WithLabelValues(outcome).Inc()
}

// ObserveSteps records how many deliberation steps a chat turn used.
func (m *Metrics) ObserveSteps(n int) {
	if m == nil {
		return
	}
	m.steps.Observe(float64(n))
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
