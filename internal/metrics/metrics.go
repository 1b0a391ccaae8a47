package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Link store metrics
	LinksCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortlinks_links_created_total",
			Help: "Total number of links created",
		},
	)

	CodeCollisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlinks_code_collisions_total",
			Help: "Generated short codes that were already taken",
		},
		[]string{"stage"}, // "precheck" or "constraint"
	)

	CodeSpaceExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortlinks_code_space_exhausted_total",
			Help: "Create calls that ran out of short code attempts",
		},
	)

	Resolves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlinks_resolves_total",
			Help: "Short code lookups by outcome",
		},
		[]string{"result"}, // "found", "not_found", "error"
	)

	// Cache metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortlinks_cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortlinks_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// Request metrics
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shortlinks_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route", "status"},
	)
)
