// Package metrics exposes the routing core's Prometheus collectors: queue
// depth, circuit breaker state, registry utilization, preemption count, and
// dedup suppression count, all registered against a private registry so
// tests can construct independent instances.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the routing core's collectors, served on /metrics. No
// component in this module sets or increments them, so they report their
// initial values.
type Metrics struct {
	Registry *prometheus.Registry

	QueueDepth          prometheus.Gauge
	BreakerState        *prometheus.GaugeVec
	RegistryUtilization prometheus.Gauge
	PreemptionsTotal    prometheus.Counter
	DedupSuppressed     prometheus.Counter
	TicketsProcessed    *prometheus.CounterVec
}

// New constructs and registers a Metrics bundle on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "routingcore",
			Name:      "queue_depth",
			Help:      "Number of tickets currently pending in the priority queue.",
		}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "routingcore",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per name: 0=closed, 1=open, 2=half-open.",
		}, []string{"name"}),
		RegistryUtilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "routingcore",
			Name:      "agent_registry_utilization",
			Help:      "Fraction of total agent capacity currently occupied.",
		}),
		PreemptionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "routingcore",
			Name:      "preemptions_total",
			Help:      "Total number of preemption events.",
		}),
		DedupSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "routingcore",
			Name:      "dedup_suppressed_total",
			Help:      "Total number of tickets folded into a Master Incident.",
		}),
		TicketsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "routingcore",
			Name:      "tickets_processed_total",
			Help:      "Total tickets processed by the worker pipeline, by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.QueueDepth,
		m.BreakerState,
		m.RegistryUtilization,
		m.PreemptionsTotal,
		m.DedupSuppressed,
		m.TicketsProcessed,
	)

	return m
}
