package loader

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/record-pager/pkg/cache"
	"github.com/Sternrassler/record-pager/pkg/collection"
	"github.com/Sternrassler/record-pager/pkg/dispatch"
	"github.com/Sternrassler/record-pager/pkg/logging"
	"github.com/Sternrassler/record-pager/pkg/pagination"
)

// Config holds loader options.
type Config[T any] struct {
	// Name labels log lines and metrics, e.g. "tickets".
	Name string

	// Equal compares records when applying a page of the same length.
	// Nil compares with reflect.DeepEqual.
	Equal func(a, b T) bool

	// PrefetchAhead is the number of pages after the current one to fetch and
	// cache once a page has been applied. Zero disables prefetching.
	PrefetchAhead int

	// Batch configures the prefetch worker pool.
	Batch pagination.BatchConfig

	// FetchTimeout bounds a single fetch or count call. Zero means no timeout.
	FetchTimeout time.Duration

	// OnError is called on the loop for every fetch or count failure.
	OnError func(error)
}

// request is one foreground page load.
type request struct {
	page       int
	pageSize   int
	generation uint64
	op         *Op
}

// Loader resolves the records of the controller's current page, from its page
// cache or from the fetcher, and applies them to an observable collection.
//
// A Loader is confined to its dispatch loop: New may run before the loop starts,
// every other method must run as a loop task. Fetches run on their own
// goroutines and post their completion back to the loop. Use View for access
// from other goroutines.
type Loader[T any] struct {
	poster  dispatch.Poster
	ctrl    *pagination.Controller
	fetcher pagination.Fetcher[T]
	batch   *pagination.BatchFetcher[T]
	config  Config[T]
	logger  zerolog.Logger

	pages *cache.PageCache[T]
	items *collection.Collection[T]

	ctx    context.Context
	cancel context.CancelFunc

	// generation changes on every reset; work started earlier is discarded.
	generation  uint64
	pending *request
	closed  bool

	// prefetches maps pages being prefetched at prefetchSize to their batch.
	prefetches   map[int]uint64
	prefetchSize int
	batches      uint64

	unsubscribe []func()
}

// New creates a loader for ctrl and subscribes it to the controller's
// notifications. Fetches run with a context derived from ctx; Close cancels it.
func New[T any](ctx context.Context, poster dispatch.Poster, ctrl *pagination.Controller, fetcher pagination.Fetcher[T], config Config[T]) *Loader[T] {
	if poster == nil {
		panic("poster cannot be nil")
	}
	if ctrl == nil {
		panic("controller cannot be nil")
	}
	if fetcher == nil {
		panic("fetcher cannot be nil")
	}
	if config.Name == "" {
		config.Name = "default"
	}

	ctx, cancel := context.WithCancel(ctx)
	l := &Loader[T]{
		poster:  poster,
		ctrl:    ctrl,
		fetcher: fetcher,
		batch:   pagination.NewBatchFetcher(fetcher, config.Batch),
		config:  config,
		logger:  logging.ViewLogger("loader", config.Name),
		pages:   cache.NewPageCache[T](ctrl.PageSize()),
		items:   collection.New[T](),
		ctx:     ctx,
		cancel:  cancel,
	}

	l.unsubscribe = []func(){
		ctrl.OnInvalidate(l.pages.Invalidate),
		ctrl.OnPageChanged(l.onPageChanged),
		ctrl.OnPageSizeChanged(l.onPageSizeChanged),
		ctrl.OnReset(l.onReset),
	}
	return l
}

// Controller returns the pagination controller the loader follows.
func (l *Loader[T]) Controller() *pagination.Controller {
	return l.ctrl
}

// Items returns the observable collection holding the current page.
func (l *Loader[T]) Items() *collection.Collection[T] {
	return l.items
}

// Pending returns the op of the foreground load in flight, or nil.
func (l *Loader[T]) Pending() *Op {
	if l.pending == nil {
		return nil
	}
	return l.pending.op
}

// LoadCurrentPage loads the controller's current page.
//
// A page cached at the current size is applied immediately and the returned op
// has already finished. Otherwise the page is fetched; a request for the page
// already in flight joins it. Loading is cleared and the capability flags are
// published once the load finishes, whatever the outcome.
func (l *Loader[T]) LoadCurrentPage() *Op {
	if l.closed {
		return finishedOp(ErrClosed)
	}

	page, size := l.ctrl.CurrentPage(), l.ctrl.PageSize()
	l.ctrl.SetLoading(true)

	if records, ok := l.pages.Get(page, size); ok {
		l.supersede()
		l.logger.Debug().Int("page", page).Int("page_size", size).Bool("cache_hit", true).Msg("Serving page from cache")
		l.apply(records, "cache")
		l.finishLoading()
		l.prefetch()
		return finishedOp(nil)
	}

	if p := l.pending; p != nil && p.page == page && p.pageSize == size && p.generation == l.generation {
		return p.op
	}
	l.supersede()

	req := &request{page: page, pageSize: size, generation: l.generation, op: newOp()}
	l.pending = req
	l.ctrl.Publish()

	l.logger.Debug().Int("page", page).Int("page_size", size).Bool("cache_hit", false).Msg("Fetching page")
	go l.fetch(req)
	return req.op
}

// RefreshInBackground re-queries the record count from the source, bypassing
// any count cache of the fetcher, and updates the totals. The loading flag and
// the displayed page are left alone, unless the new count clamps the current
// page, in which case the controller schedules a reload.
func (l *Loader[T]) RefreshInBackground() *Op {
	if l.closed {
		return finishedOp(ErrClosed)
	}

	op := newOp()
	gen := l.generation
	l.count(op, true, func(total int, err error) {
		switch {
		case gen != l.generation:
			op.finish(ErrSuperseded)
		case err != nil:
			op.finish(l.fail(&FetchError{Op: opCount, Err: err}))
		default:
			l.ctrl.SetTotalItems(total)
			l.logger.Debug().Int("total_items", total).Msg("Refreshed total")
			op.finish(nil)
		}
	})
	return op
}

// QueryAll resets the controller, queries the record count and loads page 1.
func (l *Loader[T]) QueryAll() *Op {
	if l.closed {
		return finishedOp(ErrClosed)
	}

	l.ctrl.Reset()
	l.ctrl.SetLoading(true)
	l.ctrl.Publish()

	op := newOp()
	gen := l.generation
	start := time.Now()
	l.count(op, false, func(total int, err error) {
		switch {
		case gen != l.generation:
			op.finish(ErrSuperseded)
		case err != nil:
			l.finishLoading()
			op.finish(l.fail(&FetchError{Op: opCount, Err: err}))
		default:
			l.ctrl.SetTotalItems(total)
			l.LoadCurrentPage().then(func(err error) {
				if err == nil {
					l.logger.Info().
						Int("total_items", total).
						Int("total_pages", l.ctrl.TotalPages()).
						Dur("duration", time.Since(start)).
						Msg("Query completed")
				}
				op.finish(err)
			})
		}
	})
	return op
}

// Close cancels fetches in flight and detaches the loader from the controller.
// Pending operations finish with ErrClosed.
func (l *Loader[T]) Close() {
	if l.closed {
		return
	}
	l.closed = true
	l.cancel()
	for _, fn := range l.unsubscribe {
		fn()
	}
	if l.pending != nil {
		l.pending.op.finish(ErrClosed)
		l.pending = nil
	}
}

func (l *Loader[T]) onPageChanged() {
	l.LoadCurrentPage()
}

func (l *Loader[T]) onPageSizeChanged() {
	// Before the first load only a pending load needs redirecting to the new size.
	if l.ctrl.Initialized() || l.pending != nil {
		l.LoadCurrentPage()
		return
	}
	l.finishLoading()
}

func (l *Loader[T]) onReset() {
	l.generation++
	l.supersede()
	l.pages.Clear()
	l.items.Clear()
	l.prefetches = nil
}

// supersede abandons the pending load. Its fetch still completes and is discarded.
func (l *Loader[T]) supersede() {
	if l.pending == nil {
		return
	}
	l.pending.op.finish(ErrSuperseded)
	l.pending = nil
}

func (l *Loader[T]) fetch(req *request) {
	ctx, cancel := l.callContext()
	defer cancel()

	start := time.Now()
	records, err := l.fetcher.FetchPage(ctx, req.page, req.pageSize)
	elapsed := time.Since(start)
	FetchDuration.WithLabelValues(l.config.Name).Observe(elapsed.Seconds())

	if !l.poster.Post(func() { l.complete(req, records, err, elapsed) }) {
		req.op.finish(ErrClosed)
	}
}

// complete runs on the loop when a fetch returns.
func (l *Loader[T]) complete(req *request, records []T, err error, elapsed time.Duration) {
	if req != l.pending {
		StaleDiscards.WithLabelValues(l.config.Name).Inc()
		l.logger.Debug().Int("page", req.page).Int("page_size", req.pageSize).Msg("Discarded stale completion")
		if err == nil {
			l.keep(req, records)
		}
		return
	}
	l.pending = nil

	if err != nil {
		l.finishLoading()
		req.op.finish(l.fail(&FetchError{Op: opFetch, Page: req.page, PageSize: req.pageSize, Err: err}))
		return
	}

	l.keep(req, records)

	// The page or size moved after the request was issued but before a new load
	// replaced it. Load what is current now; the page stays in loading state.
	if req.page != l.ctrl.CurrentPage() || req.pageSize != l.ctrl.PageSize() {
		StaleDiscards.WithLabelValues(l.config.Name).Inc()
		l.logger.Debug().Int("page", req.page).Int("page_size", req.pageSize).Msg("Discarded completion for page no longer current")
		req.op.finish(ErrSuperseded)
		l.LoadCurrentPage()
		return
	}

	l.logger.Debug().
		Int("page", req.page).
		Int("page_size", req.pageSize).
		Int("records", len(records)).
		Dur("duration", elapsed).
		Msg("Page fetched")

	l.apply(records, "fetch")
	l.finishLoading()
	req.op.finish(nil)
	l.prefetch()
}

// keep caches records fetched in the current generation at the current epoch.
func (l *Loader[T]) keep(req *request, records []T) {
	if req.generation != l.generation || req.pageSize != l.pages.PageSize() {
		return
	}
	l.pages.Put(req.page, req.pageSize, records)
}

func (l *Loader[T]) apply(records []T, source string) {
	res := l.items.Sync(records, l.config.Equal)
	if res.Reset {
		FullReplaces.WithLabelValues(l.config.Name).Inc()
	}
	if res.Inconsistent {
		l.logger.Warn().Int("records", len(records)).Msg("Length changed during in-place update, replaced collection")
	}
	PageLoads.WithLabelValues(l.config.Name, source).Inc()
	l.ctrl.MarkInitialized()
}

func (l *Loader[T]) finishLoading() {
	l.ctrl.SetLoading(false)
	l.ctrl.Publish()
}

func (l *Loader[T]) fail(err *FetchError) error {
	FetchFailures.WithLabelValues(l.config.Name, err.Op).Inc()
	if !errors.Is(err, context.Canceled) {
		l.logger.Warn().Err(err.Err).Str("op", err.Op).Int("page", err.Page).Int("page_size", err.PageSize).Msg("Load failed")
	}
	if l.config.OnError != nil {
		l.config.OnError(err)
	}
	return err
}

// count queries the record count off the loop and calls done on the loop.
// A fresh count bypasses any count cache of the fetcher.
// op finishes with ErrClosed if the loader or the loop closes first.
func (l *Loader[T]) count(op *Op, fresh bool, done func(total int, err error)) {
	count := l.fetcher.Count
	if r, ok := l.fetcher.(pagination.CountRefresher); ok && fresh {
		count = r.RefreshCount
	}

	go func() {
		ctx, cancel := l.callContext()
		defer cancel()

		total, err := count(ctx)
		if err == nil && total < 0 {
			err = errNegativeCount
		}
		posted := l.poster.Post(func() {
			if l.closed {
				op.finish(ErrClosed)
				return
			}
			done(total, err)
		})
		if !posted {
			op.finish(ErrClosed)
		}
	}()
}

// prefetch fetches the pages following the current one that are neither
// cached nor already being prefetched. Batches run independently, so a slow
// batch only holds back its own pages.
func (l *Loader[T]) prefetch() {
	if l.config.PrefetchAhead <= 0 {
		return
	}

	size := l.ctrl.PageSize()
	if l.prefetches == nil || l.prefetchSize != size {
		l.prefetches = make(map[int]uint64)
		l.prefetchSize = size
	}

	last := min(l.ctrl.CurrentPage()+l.config.PrefetchAhead, l.ctrl.TotalPages())
	var pages []int
	for p := l.ctrl.CurrentPage() + 1; p <= last; p++ {
		if _, running := l.prefetches[p]; !running && !l.pages.Has(p, size) {
			pages = append(pages, p)
		}
	}
	if len(pages) == 0 {
		return
	}

	l.batches++
	batch, gen := l.batches, l.generation
	for _, p := range pages {
		l.prefetches[p] = batch
	}

	go func() {
		results, err := l.batch.FetchPages(l.ctx, pages, size)
		if err != nil {
			l.logger.Debug().Err(err).Ints("pages", pages).Msg("Prefetch incomplete")
		}
		l.poster.Post(func() {
			if gen != l.generation {
				return
			}
			for _, p := range pages {
				if l.prefetches[p] == batch {
					delete(l.prefetches, p)
				}
			}
			if size != l.pages.PageSize() {
				return
			}
			for page, records := range results {
				if !l.pages.Has(page, size) {
					l.pages.Put(page, size, records)
					PrefetchedPages.WithLabelValues(l.config.Name).Inc()
				}
			}
		})
	}()
}

func (l *Loader[T]) callContext() (context.Context, context.CancelFunc) {
	if l.config.FetchTimeout > 0 {
		return context.WithTimeout(l.ctx, l.config.FetchTimeout)
	}
	return context.WithCancel(l.ctx)
}
