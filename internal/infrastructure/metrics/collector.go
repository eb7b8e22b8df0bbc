package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/asakaida/sharing/pkg/cache"
	"github.com/asakaida/sharing/pkg/cache/memorycache"
	"google.golang.org/grpc/codes"
)

// Collector collects and aggregates metrics for the application.
type Collector struct {
	// API metrics
	apiRequests sync.Map // map[string]*uint64 - method -> count
	apiStatus   sync.Map // map[statusKey]*uint64 - method/code -> count
	apiDuration sync.Map // map[string]*durationValue - method -> total duration in seconds

	// Decision metrics
	decisions sync.Map // map[decisionKey]*uint64 - capability/result -> count

	// Cache reference (optional, for querying cache-specific metrics)
	cache cache.Cache
}

// durationValue holds duration with mutex for thread-safe updates.
type durationValue struct {
	mu           sync.Mutex
	totalSeconds float64
}

type statusKey struct {
	method string
	code   codes.Code
}

type decisionKey struct {
	capability string
	allowed    bool
}

// CacheMetrics holds decision cache performance metrics.
type CacheMetrics struct {
	Hits        uint64
	Misses      uint64
	HitRate     float64
	KeysCurrent int64
	MemoryBytes int64
	Evictions   uint64
}

// APIMetrics holds API request metrics.
// Non-OK responses are split into rejections (see IsRejection) and faults.
type APIMetrics struct {
	RequestCounts        map[string]uint64
	StatusCounts         map[string]map[codes.Code]uint64
	RejectionCounts      map[string]uint64
	FaultCounts          map[string]uint64
	TotalDurationSeconds map[string]float64
}

// DecisionMetrics holds resolved decision counts per capability.
type DecisionMetrics struct {
	Allowed map[string]uint64
	Denied  map[string]uint64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// SetCache sets the cache instance for collecting cache metrics.
func (c *Collector) SetCache(cache cache.Cache) {
	c.cache = cache
}

// RecordRequest records an API request.
func (c *Collector) RecordRequest(method string) {
	counter := c.getOrCreateCounter(&c.apiRequests, method)
	atomic.AddUint64(counter, 1)
}

// RecordStatus records the status code a call finished with.
func (c *Collector) RecordStatus(method string, code codes.Code) {
	val, _ := c.apiStatus.LoadOrStore(statusKey{method: method, code: code}, new(uint64))
	atomic.AddUint64(val.(*uint64), 1)
}

// RecordDuration records the duration of an API call in seconds.
func (c *Collector) RecordDuration(method string, durationSeconds float64) {
	val, _ := c.apiDuration.LoadOrStore(method, &durationValue{})
	dv := val.(*durationValue)

	dv.mu.Lock()
	dv.totalSeconds += durationSeconds
	dv.mu.Unlock()
}

// RecordDecision records the outcome of a resolved permission check.
func (c *Collector) RecordDecision(capability string, allowed bool) {
	val, _ := c.decisions.LoadOrStore(decisionKey{capability: capability, allowed: allowed}, new(uint64))
	atomic.AddUint64(val.(*uint64), 1)
}

// GetCacheMetrics returns current cache metrics.
func (c *Collector) GetCacheMetrics() *CacheMetrics {
	if c.cache == nil {
		return &CacheMetrics{}
	}

	metrics := c.cache.Metrics()
	if metrics == nil {
		return &CacheMetrics{}
	}

	result := &CacheMetrics{
		Hits:      metrics.Hits,
		Misses:    metrics.Misses,
		HitRate:   metrics.HitRate(),
		Evictions: metrics.KeysEvicted,
	}

	// Get current keys and memory if available
	if memCache, ok := c.cache.(*memorycache.Cache); ok {
		result.KeysCurrent = int64(memCache.Len())
		result.MemoryBytes = memCache.Size()
	}

	return result
}

// GetAPIMetrics returns current API metrics.
func (c *Collector) GetAPIMetrics() *APIMetrics {
	result := &APIMetrics{
		RequestCounts:        make(map[string]uint64),
		StatusCounts:         make(map[string]map[codes.Code]uint64),
		RejectionCounts:      make(map[string]uint64),
		FaultCounts:          make(map[string]uint64),
		TotalDurationSeconds: make(map[string]float64),
	}

	// Collect request counts
	c.apiRequests.Range(func(key, value interface{}) bool {
		result.RequestCounts[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})

	c.apiStatus.Range(func(key, value interface{}) bool {
		k := key.(statusKey)
		count := atomic.LoadUint64(value.(*uint64))

		byCode, ok := result.StatusCounts[k.method]
		if !ok {
			byCode = make(map[codes.Code]uint64)
			result.StatusCounts[k.method] = byCode
		}
		byCode[k.code] = count

		switch {
		case k.code == codes.OK:
		case IsRejection(k.code):
			result.RejectionCounts[k.method] += count
		default:
			result.FaultCounts[k.method] += count
		}
		return true
	})

	// Collect duration totals
	c.apiDuration.Range(func(key, value interface{}) bool {
		dv := value.(*durationValue)
		dv.mu.Lock()
		result.TotalDurationSeconds[key.(string)] = dv.totalSeconds
		dv.mu.Unlock()
		return true
	})

	return result
}

// GetDecisionMetrics returns decision counts grouped by result.
func (c *Collector) GetDecisionMetrics() *DecisionMetrics {
	result := &DecisionMetrics{
		Allowed: make(map[string]uint64),
		Denied:  make(map[string]uint64),
	}

	c.decisions.Range(func(key, value interface{}) bool {
		k := key.(decisionKey)
		count := atomic.LoadUint64(value.(*uint64))
		if k.allowed {
			result.Allowed[k.capability] = count
		} else {
			result.Denied[k.capability] = count
		}
		return true
	})

	return result
}

// getOrCreateCounter gets or creates a counter for the given key.
func (c *Collector) getOrCreateCounter(m *sync.Map, key string) *uint64 {
	val, _ := m.LoadOrStore(key, new(uint64))
	return val.(*uint64)
}
