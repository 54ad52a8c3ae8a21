package cache

import (
	"time"
)

// CacheEntry represents a cached page or record count.
type CacheEntry struct {
	// Data is the JSON encoded page of records (empty for count entries)
	Data []byte `json:"data,omitempty"`

	// Total is the record count (count entries only)
	Total int `json:"total"`

	// Expires is when the entry becomes stale
	Expires time.Time `json:"expires"`

	// CachedAt is when we cached this entry
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry creates an entry holding data that expires after ttl.
func NewEntry(data []byte, total int, ttl time.Duration) *CacheEntry {
	now := time.Now()
	return &CacheEntry{
		Data:     data,
		Total:    total,
		Expires:  now.Add(ttl),
		CachedAt: now,
	}
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Age returns how long ago the entry was cached.
func (e *CacheEntry) Age() time.Duration {
	return time.Since(e.CachedAt)
}
