// Package pagination owns the "where am I" state of a paged record set.
//
// A Controller tracks the current page, the page size, the total record count and
// the loading flag, derives the page count and the navigation capability flags,
// and raises change notifications. It never talks to storage: the loader package
// reacts to its notifications and fetches records through a Fetcher.
//
// Example usage:
//
//	loop := dispatch.NewLoop()
//	go loop.Run(ctx)
//
//	ctrl := pagination.NewController(loop, pagination.DefaultOptions())
//	ctrl.OnPageChanged(func() { /* load ctrl.CurrentPage() */ })
//	ctrl.SetTotalItems(100)
//	ctrl.MarkInitialized()
//	ctrl.NextPage()
//
// The controller is confined to its dispatch loop: every method must be called
// from a task running on that loop (or, in tests, from the goroutine draining a
// dispatch.Queue).
//
// Page-changed notifications from GoToPage and its wrappers are deferred to the
// loop's next task, so a burst of navigation calls made inside one task produces
// one notification per accepted change, each observed after the whole burst.
// Page-size-changed notifications fire synchronously once the new size has been
// applied, the cache invalidated and the current page clamped.
//
// BatchFetcher fetches several pages in parallel with a worker pool; the loader
// uses it to prefetch pages ahead of the current one.
package pagination
