package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const outcomeOK = "ok"

type proxyMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newProxyMetrics(registerer prometheus.Registerer) proxyMetrics {
	metrics := proxyMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "topology_proxy_requests_total",
			Help: "Number of topology list requests by outcome (ok or failure kind)",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "topology_proxy_upstream_duration_seconds",
			Help:    "Time spent waiting on the topology service",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	registerer.MustRegister(metrics.requests, metrics.duration)
	return metrics
}

func (m proxyMetrics) observe(outcome string, elapsed time.Duration) {
	m.requests.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}
