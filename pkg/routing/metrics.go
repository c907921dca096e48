package routing

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var (
	// routeRequests counts Route calls by outcome kind ("ok" on success).
	routeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "router_route_requests_total",
		Help: "Route queries by outcome",
	}, []string{"outcome"})

	routeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "router_route_duration_seconds",
		Help:    "Route query latency",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"outcome"})

	searchSettled = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "router_search_settled_nodes",
		Help:    "Nodes settled per shortest-path search",
		Buckets: prometheus.ExponentialBuckets(1, 4, 12),
	})

	graphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "router_graph_nodes",
		Help: "Nodes in the serving graph",
	})

	graphEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "router_graph_edges",
		Help: "Directed edges in the serving graph",
	})

	graphReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "router_graph_reloads_total",
		Help: "Graph reload attempts by result",
	}, []string{"result"})
)

var (
	tracerOnce sync.Once
	tracer     trace.Tracer
)

// getTracer returns the package tracer. Without a configured provider the
// global no-op tracer is used.
func getTracer() trace.Tracer {
	tracerOnce.Do(func() {
		tracer = otel.Tracer("github.com/azybler/route_finder/pkg/routing")
	})
	return tracer
}
