package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RemoteHits tracks Redis tier hits by kind (page, count)
	RemoteHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pager_remote_cache_hits_total",
			Help: "Total number of shared page cache hits",
		},
		[]string{"kind"},
	)

	// RemoteMisses tracks Redis tier misses by kind (page, count)
	RemoteMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pager_remote_cache_misses_total",
			Help: "Total number of shared page cache misses",
		},
		[]string{"kind"},
	)

	// RemoteErrors tracks cache operation errors
	RemoteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pager_remote_cache_errors_total",
			Help: "Total number of shared page cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "decode"
	)

	// RemoteWrittenBytes tracks bytes written to Redis
	RemoteWrittenBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pager_remote_cache_written_bytes_total",
			Help: "Total bytes written to the shared page cache",
		},
	)
)

func kindLabel(key CacheKey) string {
	if key.IsCount() {
		return "count"
	}
	return "page"
}
