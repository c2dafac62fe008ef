// Package metrics exposes the engine's Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "synapse"

// Collector holds all Prometheus metrics for synapse. Each Collector owns its
// registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Graph metrics
	NodesCreated    prometheus.Counter
	EdgesCreated    prometheus.Counter
	EdgesInferred   prometheus.Counter
	EdgesPruned     prometheus.Counter
	EdgesReinforced prometheus.Counter
	Clusters        prometheus.Gauge
	Nodes           prometheus.Gauge
	Edges           prometheus.Gauge

	// Background work
	CycleDuration *prometheus.HistogramVec
	CycleFailures *prometheus.CounterVec

	// Embedding and persistence
	EmbedCalls          *prometheus.CounterVec
	PersistenceFailures prometheus.Counter
	PendingMutations    prometheus.Gauge
	EventsDropped       prometheus.Counter
}

// New creates a Collector with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		NodesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_created_total",
			Help:      "Total number of nodes created or replaced",
		}),
		EdgesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_created_total",
			Help:      "Total number of caller-created edges",
		}),
		EdgesInferred: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_inferred_total",
			Help:      "Total number of edges created by transitive inference",
		}),
		EdgesPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_pruned_total",
			Help:      "Total number of edges removed under memory pressure",
		}),
		EdgesReinforced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_reinforced_total",
			Help:      "Total number of strength boosts applied to busy edges",
		}),
		Clusters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clusters",
			Help:      "Number of clusters found by the latest clustering pass",
		}),
		Nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes",
			Help:      "Number of nodes in the graph",
		}),
		Edges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "edges",
			Help:      "Number of edges in the graph",
		}),

		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of background passes in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"pass"}),
		CycleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pass_failures_total",
			Help:      "Total number of background passes that failed",
		}, []string{"pass"}),

		EmbedCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embed_calls_total",
			Help:      "Embedding requests by provider and outcome",
		}, []string{"provider", "status"}),
		PersistenceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Total number of mutations that could not be written",
		}),
		PendingMutations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_mutations",
			Help:      "Mutations waiting to be flushed to the database",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events discarded because a subscriber was not keeping up",
		}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.HTTPRequests, c.HTTPDuration,
		c.NodesCreated, c.EdgesCreated, c.EdgesInferred, c.EdgesPruned, c.EdgesReinforced,
		c.Clusters, c.Nodes, c.Edges,
		c.CycleDuration, c.CycleFailures,
		c.EmbedCalls, c.PersistenceFailures, c.PendingMutations, c.EventsDropped,
	)
	return c
}

// Registry returns the registry backing this collector.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
