package pagination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// BatchConfig holds batch fetcher configuration.
type BatchConfig struct {
	// MaxConcurrency is the maximum number of parallel page fetches.
	MaxConcurrency int
	// Timeout per page fetch
	Timeout time.Duration
}

// DefaultBatchConfig returns a configuration suited to prefetching a few pages.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
	}
}

// PageResult represents the result of fetching a single page.
type PageResult[T any] struct {
	PageNumber int
	Records    []T
	Error      error
}

// BatchFetcher fetches several pages of the same size in parallel.
type BatchFetcher[T any] struct {
	fetcher Fetcher[T]
	config  BatchConfig
}

// NewBatchFetcher creates a new batch fetcher.
func NewBatchFetcher[T any](fetcher Fetcher[T], config BatchConfig) *BatchFetcher[T] {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &BatchFetcher[T]{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchPages fetches the given pages using a worker pool.
// It returns the pages that were fetched successfully; on any failure the
// error describes the first failing page and the map holds the partial result.
func (bf *BatchFetcher[T]) FetchPages(ctx context.Context, pages []int, pageSize int) (map[int][]T, error) {
	start := time.Now()
	results := make(map[int][]T, len(pages))
	if len(pages) == 0 {
		return results, nil
	}

	// Single page optimization
	if len(pages) == 1 {
		records, err := bf.fetchOne(ctx, pages[0], pageSize)
		if err != nil {
			return results, fmt.Errorf("fetch page %d: %w", pages[0], err)
		}
		results[pages[0]] = records
		return results, nil
	}

	workers := bf.config.MaxConcurrency
	if workers > len(pages) {
		workers = len(pages)
	}

	pageQueue := make(chan int, len(pages))
	pageResults := make(chan PageResult[T], len(pages))
	for _, page := range pages {
		pageQueue <- page
	}
	close(pageQueue)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go bf.worker(ctx, pageSize, pageQueue, pageResults, &wg, i)
	}

	go func() {
		wg.Wait()
		close(pageResults)
	}()

	var firstErr error
	for result := range pageResults {
		if result.Error != nil {
			log.Warn().
				Err(result.Error).
				Int("page", result.PageNumber).
				Int("page_size", pageSize).
				Msg("Page fetch failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("fetch page %d: %w", result.PageNumber, result.Error)
			}
			continue
		}
		results[result.PageNumber] = result.Records
	}

	log.Debug().
		Int("pages", len(results)).
		Int("requested", len(pages)).
		Int("page_size", pageSize).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")

	if firstErr != nil {
		return results, fmt.Errorf("partial data %d/%d pages: %w", len(results), len(pages), firstErr)
	}
	return results, nil
}

// worker processes pages from the queue until it is empty or ctx is cancelled.
func (bf *BatchFetcher[T]) worker(ctx context.Context, pageSize int, pageQueue <-chan int, results chan<- PageResult[T], wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for pageNum := range pageQueue {
		if err := ctx.Err(); err != nil {
			results <- PageResult[T]{PageNumber: pageNum, Error: err}
			continue
		}

		records, err := bf.fetchOne(ctx, pageNum, pageSize)
		results <- PageResult[T]{PageNumber: pageNum, Records: records, Error: err}
		pagesProcessed++
	}

	if pagesProcessed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", pagesProcessed).
			Msg("Worker completed")
	}
}

func (bf *BatchFetcher[T]) fetchOne(ctx context.Context, page, pageSize int) ([]T, error) {
	pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()
	return bf.fetcher.FetchPage(pageCtx, page, pageSize)
}
