package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/record-pager/pkg/pagination"
)

// DefaultTTL is how long shared pages and counts stay valid.
const DefaultTTL = 30 * time.Second

// CachingFetcher is a read-through Redis tier in front of another fetcher.
//
// Pages and counts are shared between list views and sessions until their TTL
// runs out. Redis failures never fail a fetch: the call falls through to the
// wrapped fetcher and the error is logged and counted.
type CachingFetcher[T any] struct {
	next       pagination.Fetcher[T]
	manager    *Manager
	collection string
	scope      map[string]string
	ttl        time.Duration
	logger     zerolog.Logger
}

var (
	_ pagination.Fetcher[int]   = (*CachingFetcher[int])(nil)
	_ pagination.CountRefresher = (*CachingFetcher[int])(nil)
)

// NewCachingFetcher wraps next with the Redis tier for collection.
// A non-positive ttl selects DefaultTTL.
func NewCachingFetcher[T any](next pagination.Fetcher[T], manager *Manager, collection string, ttl time.Duration) *CachingFetcher[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachingFetcher[T]{
		next:       next,
		manager:    manager,
		collection: collection,
		ttl:        ttl,
		logger: log.With().
			Str("component", "remote-cache").
			Str("collection", collection).
			Logger(),
	}
}

// WithScope returns a copy of f whose keys include the given filters.
func (f *CachingFetcher[T]) WithScope(scope map[string]string) *CachingFetcher[T] {
	cp := *f
	cp.scope = scope
	return &cp
}

// FetchPage implements pagination.Fetcher.
func (f *CachingFetcher[T]) FetchPage(ctx context.Context, page, pageSize int) ([]T, error) {
	key := PageKey(f.collection, f.scope, page, pageSize)

	if records, ok := f.cachedPage(ctx, key); ok {
		return records, nil
	}

	records, err := f.next.FetchPage(ctx, page, pageSize)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(records)
	if err != nil {
		RemoteErrors.WithLabelValues("set").Inc()
		f.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to encode page")
		return records, nil
	}
	if err := f.manager.Set(ctx, key, NewEntry(data, 0, f.ttl)); err != nil {
		f.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to cache page")
	}

	return records, nil
}

// Count implements pagination.Fetcher.
func (f *CachingFetcher[T]) Count(ctx context.Context) (int, error) {
	key := CountKey(f.collection, f.scope)

	entry, err := f.manager.Get(ctx, key)
	switch {
	case err == nil:
		f.logger.Debug().Str("key", key.String()).Int("total", entry.Total).Msg("Count served from cache")
		return entry.Total, nil
	case !errors.Is(err, ErrCacheMiss):
		f.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get error")
	}

	return f.countThrough(ctx, key)
}

// RefreshCount implements pagination.CountRefresher. It skips the cached count
// and stores the fresh one for every other reader of the collection.
func (f *CachingFetcher[T]) RefreshCount(ctx context.Context) (int, error) {
	return f.countThrough(ctx, CountKey(f.collection, f.scope))
}

func (f *CachingFetcher[T]) countThrough(ctx context.Context, key CacheKey) (int, error) {
	total, err := f.next.Count(ctx)
	if err != nil {
		return 0, err
	}

	if err := f.manager.Set(ctx, key, NewEntry(nil, total, f.ttl)); err != nil {
		f.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to cache count")
	}
	return total, nil
}

// Invalidate drops every page and count cached for the collection.
// Writers call it after adding or removing records.
func (f *CachingFetcher[T]) Invalidate(ctx context.Context) error {
	removed, err := f.manager.DeleteCollection(ctx, f.collection)
	if err != nil {
		return err
	}
	f.logger.Debug().Int("removed", removed).Msg("Collection invalidated")
	return nil
}

func (f *CachingFetcher[T]) cachedPage(ctx context.Context, key CacheKey) ([]T, bool) {
	entry, err := f.manager.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			f.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get error")
		}
		return nil, false
	}

	var records []T
	if err := json.Unmarshal(entry.Data, &records); err != nil {
		RemoteErrors.WithLabelValues("decode").Inc()
		f.logger.Warn().Err(err).Str("key", key.String()).Msg("Discarding undecodable page")
		_ = f.manager.Delete(ctx, key)
		return nil, false
	}

	f.logger.Debug().
		Str("key", key.String()).
		Dur("ttl", entry.TTL()).
		Msg("Page served from cache")
	return records, true
}
