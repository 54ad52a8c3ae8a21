package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager stores pages and counts in Redis so list views in different sessions
// share fetched data.
type Manager struct {
	redis *redis.Client
}

// NewManager creates a new cache manager with Redis backend.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis: redisClient,
	}
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	cacheKey := key.String()

	data, err := m.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			RemoteMisses.WithLabelValues(kindLabel(key)).Inc()
			return nil, ErrCacheMiss
		}
		RemoteErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		RemoteErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		RemoteMisses.WithLabelValues(kindLabel(key)).Inc()
		return nil, ErrCacheMiss
	}

	RemoteHits.WithLabelValues(kindLabel(key)).Inc()
	return &entry, nil
}

// Set stores a cache entry with TTL based on the entry's Expires field.
// Entries that have already expired are not stored.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		RemoteErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		RemoteErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	RemoteWrittenBytes.Add(float64(len(data)))
	return nil
}

// Delete removes a cache entry.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		RemoteErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// DeleteCollection removes every page and count cached for collection,
// whatever scope they were stored under. It returns the number of keys removed.
func (m *Manager) DeleteCollection(ctx context.Context, collection string) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	pattern := CollectionPattern(collection)

	for {
		keys, next, err := m.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			RemoteErrors.WithLabelValues("delete").Inc()
			return removed, fmt.Errorf("redis scan %s: %w", pattern, err)
		}

		if len(keys) > 0 {
			n, err := m.redis.Del(ctx, keys...).Result()
			if err != nil {
				RemoteErrors.WithLabelValues("delete").Inc()
				return removed, fmt.Errorf("redis del: %w", err)
			}
			removed += int(n)
		}

		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}
