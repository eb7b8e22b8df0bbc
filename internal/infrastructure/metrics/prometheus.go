package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc/codes"
)

// PrometheusExporter exports metrics to Prometheus format.
type PrometheusExporter struct {
	collector *Collector

	// Prometheus metrics
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	cacheHitRate     prometheus.Gauge
	cacheKeys        prometheus.Gauge
	cacheMemoryBytes prometheus.Gauge
	cacheEvictions   prometheus.Counter
	decisions        *prometheus.CounterVec
	grpcRequests     *prometheus.CounterVec
	grpcDuration     *prometheus.HistogramVec
	grpcHandled      *prometheus.CounterVec

	// Last cumulative cache counters seen by Update
	mu            sync.Mutex
	lastHits      uint64
	lastMisses    uint64
	lastEvictions uint64
}

// NewPrometheusExporter creates a new Prometheus exporter.
func NewPrometheusExporter(collector *Collector) *PrometheusExporter {
	return &PrometheusExporter{
		collector: collector,
		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sharing_decision_cache_hits_total",
			Help: "Total number of cache hits for permission decisions",
		}),
		cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sharing_decision_cache_misses_total",
			Help: "Total number of cache misses for permission decisions",
		}),
		cacheHitRate: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sharing_decision_cache_hit_rate",
			Help: "Current cache hit rate (0.0 to 1.0)",
		}),
		cacheKeys: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sharing_decision_cache_keys_current",
			Help: "Current number of keys in the decision cache",
		}),
		cacheMemoryBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sharing_decision_cache_memory_bytes",
			Help: "Current memory usage of the decision cache in bytes",
		}),
		cacheEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sharing_decision_cache_evictions_total",
			Help: "Total number of cache evictions due to memory limits",
		}),
		decisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharing_decisions_total",
				Help: "Total number of resolved permission decisions",
			},
			[]string{"capability", "result"},
		),
		grpcRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharing_grpc_requests_total",
				Help: "Total number of gRPC requests",
			},
			[]string{"method"},
		),
		grpcDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sharing_grpc_request_duration_seconds",
				Help:    "Duration of gRPC requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
			[]string{"method"},
		),
		grpcHandled: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharing_grpc_handled_total",
				Help: "Total number of completed gRPC requests by status code",
			},
			[]string{"method", "code"},
		),
	}
}

// Update refreshes cache metrics from the collector.
// Cache counters are cumulative in the cache itself, so only the delta
// since the previous call is added. Call periodically (e.g., every 10 seconds).
func (e *PrometheusExporter) Update() {
	cacheMetrics := e.collector.GetCacheMetrics()
	e.cacheHitRate.Set(cacheMetrics.HitRate)
	e.cacheKeys.Set(float64(cacheMetrics.KeysCurrent))
	e.cacheMemoryBytes.Set(float64(cacheMetrics.MemoryBytes))

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cacheHits.Add(delta(cacheMetrics.Hits, &e.lastHits))
	e.cacheMisses.Add(delta(cacheMetrics.Misses, &e.lastMisses))
	e.cacheEvictions.Add(delta(cacheMetrics.Evictions, &e.lastEvictions))
}

// delta returns current-last and stores current; a reset cache yields 0
func delta(current uint64, last *uint64) float64 {
	if current < *last {
		*last = current
		return 0
	}
	d := current - *last
	*last = current
	return float64(d)
}

// RecordRequest records a request in Prometheus.
func (e *PrometheusExporter) RecordRequest(method string) {
	e.grpcRequests.WithLabelValues(method).Inc()
}

// RecordDuration records a duration in Prometheus.
func (e *PrometheusExporter) RecordDuration(method string, durationSeconds float64) {
	e.grpcDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordStatus counts a completed call under its status code.
func (e *PrometheusExporter) RecordStatus(method string, code codes.Code) {
	e.grpcHandled.WithLabelValues(method, code.String()).Inc()
}

// RecordDecision records a resolved decision in Prometheus.
func (e *PrometheusExporter) RecordDecision(capability string, allowed bool) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	e.decisions.WithLabelValues(capability, result).Inc()
}
