// Package loader keeps a list view's observable collection in step with its
// pagination controller.
//
// A Loader reacts to the controller's notifications: it serves the current page
// from its page cache when the page was fetched at the current page size, and
// otherwise fetches it off the loop and applies the result when it comes back.
// Only the newest request is applied. A completion for a page or size that is
// no longer current, or that was started before a reset, is discarded and its
// op finishes with ErrSuperseded.
//
// View wraps a Loader for callers outside the loop, such as HTTP handlers.
package loader
