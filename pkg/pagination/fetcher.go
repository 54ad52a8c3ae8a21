package pagination

import "context"

// Fetcher is the contract a record source must satisfy for paged loading.
//
// FetchPage returns the records of a 1-based page, in display order. Repeated
// calls with the same arguments may only differ if the underlying store changed.
// Count returns the total number of records and seeds the page count before the
// first load.
type Fetcher[T any] interface {
	FetchPage(ctx context.Context, page, pageSize int) ([]T, error)
	Count(ctx context.Context) (int, error)
}

// CountRefresher is implemented by fetchers that may answer Count from a cache.
// RefreshCount asks the underlying source and replaces the cached count.
type CountRefresher interface {
	RefreshCount(ctx context.Context) (int, error)
}

// FetcherFuncs adapts a pair of functions to Fetcher.
type FetcherFuncs[T any] struct {
	PageFunc  func(ctx context.Context, page, pageSize int) ([]T, error)
	CountFunc func(ctx context.Context) (int, error)
}

// FetchPage implements Fetcher.
func (f FetcherFuncs[T]) FetchPage(ctx context.Context, page, pageSize int) ([]T, error) {
	return f.PageFunc(ctx, page, pageSize)
}

// Count implements Fetcher.
func (f FetcherFuncs[T]) Count(ctx context.Context) (int, error) {
	return f.CountFunc(ctx)
}
