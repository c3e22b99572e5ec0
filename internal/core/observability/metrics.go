// Package observability holds the prometheus instruments shared across
// the service: http serving, upstream fetches, the viewport fetch
// pipeline, redis cache operations and invalidation events.
package observability

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var enabled atomic.Bool

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream facility calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream"},
	)

	cacheOpTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Redis cache operations by op and result.",
		},
		[]string{"op", "result"},
	)

	redisOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Duration of redis operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	cacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Cached facility query lookups by outcome.",
		},
		[]string{"outcome"},
	)

	fetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewport_fetch_total",
			Help: "Viewport fetch pipeline runs by outcome.",
		},
		[]string{"outcome"},
	)

	orgFetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "org_fetch_errors_total",
			Help: "Per-org facility fetches that failed and contributed nothing.",
		},
		[]string{"org"},
	)

	invalidationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidation_events_total",
			Help: "Facility change events by handling result.",
		},
		[]string{"result"},
	)
)

var initOnce sync.Mutex

// Init registers the shared instruments with the given registerer.
// With enable=false everything stays a no-op, which keeps call sites
// unconditional.
func Init(reg prometheus.Registerer, enable bool) {
	initOnce.Lock()
	defer initOnce.Unlock()

	enabled.Store(enable && reg != nil)
	if !enabled.Load() {
		return
	}
	for _, c := range []prometheus.Collector{
		httpRequestsTotal,
		httpRequestDurationSeconds,
		upstreamLatencySeconds,
		cacheOpTotal,
		redisOpDurationSeconds,
		cacheResults,
		fetchTotal,
		orgFetchErrors,
		invalidationTotal,
	} {
		if err := reg.Register(c); err != nil {
			// already registered is fine when tests re-init
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	cacheOpTotal.WithLabelValues(op, result).Inc()
	redisOpDurationSeconds.WithLabelValues(op).Observe(durationSeconds)
}

func AddCacheHits(n int) {
	if !enabled.Load() || n <= 0 {
		return
	}
	cacheResults.WithLabelValues("hit").Add(float64(n))
}

func AddCacheMisses(n int) {
	if !enabled.Load() || n <= 0 {
		return
	}
	cacheResults.WithLabelValues("miss").Add(float64(n))
}

// Fetch pipeline outcomes.
const (
	FetchPublished    = "published"
	FetchStaleDiscard = "stale_discard"
	FetchEmptyInput   = "empty_input"
)

func IncFetch(outcome string) {
	if !enabled.Load() {
		return
	}
	fetchTotal.WithLabelValues(outcome).Inc()
}

func IncOrgFetchError(orgID string) {
	if !enabled.Load() {
		return
	}
	orgFetchErrors.WithLabelValues(orgID).Inc()
}

func IncInvalidation(result string) {
	if !enabled.Load() {
		return
	}
	invalidationTotal.WithLabelValues(result).Inc()
}
