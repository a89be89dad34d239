package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ethergraph",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Total HTTP requests by route and status code.",
	}, []string{"route", "status"})

	httpLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ethergraph",
		Subsystem: "api",
		Name:      "request_latency_seconds",
		Help:      "End-to-end HTTP request latency in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	tracesCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ethergraph",
		Subsystem: "trace",
		Name:      "completed_total",
		Help:      "Total successful trace requests.",
	})

	clustersAssigned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ethergraph",
		Subsystem: "cluster",
		Name:      "addresses_assigned_total",
		Help:      "Total addresses assigned a cluster id.",
	})

	scoringRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ethergraph",
		Subsystem: "anomaly",
		Name:      "scoring_runs_total",
		Help:      "Total completed scoring runs.",
	})

	sanctionsMarked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ethergraph",
		Subsystem: "compliance",
		Name:      "addresses_sanctioned_total",
		Help:      "Total addresses marked sanctioned.",
	})

	transactionsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ethergraph",
		Subsystem: "ingest",
		Name:      "transactions_total",
		Help:      "Total transactions ingested into the graph.",
	})
)

func init() {
	prometheus.MustRegister(
		httpRequests,
		httpLatency,
		tracesCompleted,
		clustersAssigned,
		scoringRuns,
		sanctionsMarked,
		transactionsIngested,
	)
}

// metricsMiddleware records request counts and latency per route.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		httpLatency.Observe(time.Since(start).Seconds())
	}
}

// metricsHandler exposes the Prometheus registry.
func metricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
