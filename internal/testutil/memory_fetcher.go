package testutil

import (
	"context"
	"slices"
	"sync"
)

// MemoryFetcher serves pages from an in-memory slice and records every call.
// Page fetches can be made to fail or to block until released.
type MemoryFetcher[T any] struct {
	mu         sync.Mutex
	records    []T
	calls      map[[2]int]int
	countCalls int
	pageErrs   map[int]error
	countErr   error
	gates      map[int]chan struct{}
}

// NewMemoryFetcher creates a fetcher serving records.
func NewMemoryFetcher[T any](records []T) *MemoryFetcher[T] {
	return &MemoryFetcher[T]{
		records:  slices.Clone(records),
		calls:    make(map[[2]int]int),
		pageErrs: make(map[int]error),
		gates:    make(map[int]chan struct{}),
	}
}

// FetchPage returns records [(page-1)*pageSize, page*pageSize).
func (f *MemoryFetcher[T]) FetchPage(ctx context.Context, page, pageSize int) ([]T, error) {
	f.mu.Lock()
	f.calls[[2]int{page, pageSize}]++
	gate := f.gates[page]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.pageErrs[page]; err != nil {
		return nil, err
	}

	start := (page - 1) * pageSize
	if start >= len(f.records) || start < 0 {
		return []T{}, nil
	}
	end := min(start+pageSize, len(f.records))
	return slices.Clone(f.records[start:end]), nil
}

// Count returns the number of records.
func (f *MemoryFetcher[T]) Count(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.countCalls++
	if f.countErr != nil {
		return 0, f.countErr
	}
	return len(f.records), nil
}

// SetRecords replaces the served records.
func (f *MemoryFetcher[T]) SetRecords(records []T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = slices.Clone(records)
}

// FailPage makes fetches of page fail with err. A nil err clears the failure.
func (f *MemoryFetcher[T]) FailPage(page int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.pageErrs, page)
		return
	}
	f.pageErrs[page] = err
}

// FailCount makes Count fail with err. A nil err clears the failure.
func (f *MemoryFetcher[T]) FailCount(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countErr = err
}

// Block holds fetches of page until release is called.
func (f *MemoryFetcher[T]) Block(page int) (release func()) {
	gate := make(chan struct{})

	f.mu.Lock()
	f.gates[page] = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.gates, page)
			f.mu.Unlock()
			close(gate)
		})
	}
}

// PageCalls returns how often page was fetched at pageSize.
func (f *MemoryFetcher[T]) PageCalls(page, pageSize int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[[2]int{page, pageSize}]
}

// Calls returns the total number of page fetches.
func (f *MemoryFetcher[T]) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// CountCalls returns the number of Count calls.
func (f *MemoryFetcher[T]) CountCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countCalls
}
