package resolver

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheMetricsMu          sync.Mutex
	cacheMetricsInitialized bool

	cacheHitCounter   prometheus.Counter
	cacheMissCounter  prometheus.Counter
	resolveHistogram  prometheus.Histogram
	cacheMetricsError error
)

// SetupCacheMetrics registers Prometheus metrics used to observe the
// effective-permission cache. The registration is performed once and
// subsequent calls are ignored.
func SetupCacheMetrics(reg prometheus.Registerer) error {
	cacheMetricsMu.Lock()
	defer cacheMetricsMu.Unlock()
	if cacheMetricsInitialized {
		return cacheMetricsError
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	cacheHitCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_permission_cache_hits_total",
		Help: "Number of cache hits for effective permission sets.",
	})
	cacheMissCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_permission_cache_miss_total",
		Help: "Number of cache misses for effective permission sets.",
	})
	resolveHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "authz_permission_resolve_duration_seconds",
		Help:    "Duration required to resolve an effective permission set from the database.",
		Buckets: prometheus.DefBuckets,
	})

	for _, collector := range []prometheus.Collector{cacheHitCounter, cacheMissCounter, resolveHistogram} {
		if err := reg.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				switch c := already.ExistingCollector.(type) {
				case prometheus.Counter:
					if collector == cacheHitCounter {
						cacheHitCounter = c
					} else {
						cacheMissCounter = c
					}
				case prometheus.Histogram:
					resolveHistogram = c
				default:
					cacheMetricsError = fmt.Errorf("resolver cache metrics: unexpected collector type %T", c)
				}
				continue
			}
			cacheMetricsError = err
			cacheHitCounter = nil
			cacheMissCounter = nil
			resolveHistogram = nil
			cacheMetricsInitialized = true
			return cacheMetricsError
		}
	}

	cacheMetricsInitialized = true
	return cacheMetricsError
}

func recordCacheHit() {
	if cacheHitCounter == nil {
		return
	}
	cacheHitCounter.Inc()
}

func recordCacheMiss() {
	if cacheMissCounter == nil {
		return
	}
	cacheMissCounter.Inc()
}

func observeResolveDuration(duration time.Duration) {
	if resolveHistogram == nil {
		return
	}
	resolveHistogram.Observe(duration.Seconds())
}
