package cache

import "slices"

// PageCache holds fetched pages for one list view, keyed by page number.
//
// Every entry was fetched at the same page size, the cache's epoch. A lookup at
// any other size misses, and Invalidate drops every entry before adopting a new
// epoch, so an entry is never partially valid. There is no eviction: a view's
// page count is small and the cache lives only as long as the view.
//
// PageCache is not safe for concurrent use; it is confined to the view's loop.
type PageCache[T any] struct {
	pages    map[int][]T
	pageSize int
}

// NewPageCache creates an empty cache for pages of pageSize records.
func NewPageCache[T any](pageSize int) *PageCache[T] {
	return &PageCache[T]{
		pages:    make(map[int][]T),
		pageSize: pageSize,
	}
}

// PageSize returns the epoch: the page size every cached entry was fetched at.
func (c *PageCache[T]) PageSize() int {
	return c.pageSize
}

// Get returns the records cached for page, provided they were fetched at pageSize.
func (c *PageCache[T]) Get(page, pageSize int) ([]T, bool) {
	if pageSize != c.pageSize {
		return nil, false
	}
	records, ok := c.pages[page]
	return records, ok
}

// Put stores records for page. A size different from the epoch invalidates the
// cache first, so the new entry starts a fresh epoch.
func (c *PageCache[T]) Put(page, pageSize int, records []T) {
	if pageSize != c.pageSize {
		c.Invalidate(pageSize)
	}
	c.pages[page] = slices.Clone(records)
}

// Has reports whether page is cached at pageSize.
func (c *PageCache[T]) Has(page, pageSize int) bool {
	_, ok := c.Get(page, pageSize)
	return ok
}

// Invalidate drops every entry and adopts pageSize as the new epoch.
func (c *PageCache[T]) Invalidate(pageSize int) {
	clear(c.pages)
	c.pageSize = pageSize
}

// Clear drops every entry and keeps the epoch.
func (c *PageCache[T]) Clear() {
	clear(c.pages)
}

// Len returns the number of cached pages.
func (c *PageCache[T]) Len() int {
	return len(c.pages)
}
