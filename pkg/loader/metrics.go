package loader

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PageLoads tracks applied pages by view and source (cache, fetch)
	PageLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pager_page_loads_total",
			Help: "Total number of pages applied to a view",
		},
		[]string{"view", "source"},
	)

	// FetchFailures tracks failed fetch and count calls
	FetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pager_fetch_failures_total",
			Help: "Total number of failed page fetches and count queries",
		},
		[]string{"view", "op"},
	)

	// StaleDiscards tracks completions dropped because a newer request overtook them
	StaleDiscards = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pager_stale_discards_total",
			Help: "Total number of fetch completions discarded as stale",
		},
		[]string{"view"},
	)

	// FetchDuration tracks page fetch latency
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pager_fetch_duration_seconds",
			Help:    "Page fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"view"},
	)

	// FullReplaces tracks applies that cleared and refilled the collection
	FullReplaces = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pager_full_replaces_total",
			Help: "Total number of applies that replaced the whole collection",
		},
		[]string{"view"},
	)

	// PrefetchedPages tracks pages stored ahead of navigation
	PrefetchedPages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pager_prefetched_pages_total",
			Help: "Total number of pages fetched ahead and cached",
		},
		[]string{"view"},
	)
)
