// Package cache holds the two page caches of a list view.
//
// PageCache is the per-view, in-memory cache the loader consults before every
// fetch. Its entries are keyed by page number and all share one page size (the
// epoch); changing the page size clears it entirely.
//
//	pages := cache.NewPageCache[records.Ticket](25)
//	pages.Put(1, 25, firstPage)
//	if recs, ok := pages.Get(1, 25); ok {
//		// cache hit
//	}
//	pages.Invalidate(50) // page size changed
//
// # Shared Redis Tier
//
// Manager and CachingFetcher form an optional read-through tier between a view
// and its record store. Pages and counts are stored as JSON with a TTL so that
// views in different sessions share fetched data:
//
//	manager := cache.NewManager(redisClient)
//	fetcher := cache.NewCachingFetcher[records.Ticket](store, manager, "tickets", 30*time.Second)
//
//	// after a write elsewhere
//	_ = fetcher.Invalidate(ctx)
//
// Redis errors never fail a fetch; the call falls through to the wrapped
// fetcher.
//
// # Metrics
//
//   - pager_remote_cache_hits_total{kind} - Redis tier hits (page, count)
//   - pager_remote_cache_misses_total{kind} - Redis tier misses
//   - pager_remote_cache_errors_total{operation} - Redis operation errors
//   - pager_remote_cache_written_bytes_total - Bytes written to Redis
package cache
