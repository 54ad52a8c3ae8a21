package cache

import (
	"fmt"
	"sort"
	"strings"
)

// KeyPrefix starts every key written by the Redis tier.
const KeyPrefix = "pager"

// CacheKey identifies a cached page, or the record count, of one collection.
type CacheKey struct {
	// Collection is the record collection (e.g., "tickets")
	Collection string

	// Scope holds the filters the collection was queried with (e.g., {"status": "open"})
	Scope map[string]string

	// Page and PageSize address a page; both are zero for the count key
	Page     int
	PageSize int
}

// CountKey returns the key of a collection's record count.
func CountKey(collection string, scope map[string]string) CacheKey {
	return CacheKey{Collection: collection, Scope: scope}
}

// PageKey returns the key of one page of a collection.
func PageKey(collection string, scope map[string]string, page, pageSize int) CacheKey {
	return CacheKey{Collection: collection, Scope: scope, Page: page, PageSize: pageSize}
}

// IsCount reports whether the key addresses the record count.
func (k CacheKey) IsCount() bool {
	return k.Page == 0
}

// String generates a deterministic cache key string.
// Format: pager:collection:scope1=val1:page=N:size=M, or pager:collection:scope1=val1:count
//
// Example:
//
//	pager:tickets:status=open:page=2:size=25
func (k CacheKey) String() string {
	parts := []string{KeyPrefix, strings.Trim(k.Collection, ":")}

	// Add scope (sorted for determinism)
	if len(k.Scope) > 0 {
		keys := make([]string, 0, len(k.Scope))
		for key := range k.Scope {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.Scope[key]))
		}
	}

	if k.IsCount() {
		parts = append(parts, "count")
	} else {
		parts = append(parts, fmt.Sprintf("page=%d", k.Page), fmt.Sprintf("size=%d", k.PageSize))
	}

	return strings.Join(parts, ":")
}

// CollectionPattern returns a SCAN pattern matching every key of a collection.
func CollectionPattern(collection string) string {
	return fmt.Sprintf("%s:%s:*", KeyPrefix, strings.Trim(collection, ":"))
}
