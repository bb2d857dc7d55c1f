package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (memory, redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cms_cache_hits_total",
			Help: "Total number of CMS response cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks lookups that missed every layer
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cms_cache_misses_total",
			Help: "Total number of CMS response cache misses",
		},
	)

	// CacheSize tracks bytes written per layer
	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cms_cache_size_bytes",
			Help: "Bytes written to the CMS response cache",
		},
		[]string{"layer"},
	)

	// ConditionalRequests tracks 304 Not Modified responses
	ConditionalRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cms_304_responses_total",
			Help: "Total number of CMS 304 Not Modified responses",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cms_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
