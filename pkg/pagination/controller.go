package pagination

import (
	"slices"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/record-pager/pkg/dispatch"
	"github.com/Sternrassler/record-pager/pkg/logging"
)

// Controller is the single source of truth for the position in a paged record set.
type Controller struct {
	poster  dispatch.Poster
	options Options
	logger  zerolog.Logger

	currentPage int
	pageSize    int
	totalItems  int
	totalPages  int
	loading     bool
	initialized bool

	// generation changes on Reset so notifications scheduled earlier are dropped.
	generation uint64

	pageChanged     observers[func()]
	pageSizeChanged observers[func()]
	invalidate      observers[func(pageSize int)]
	reset           observers[func()]
	stateChanged    observers[func(State)]
}

// NewController creates a controller on page 1 with the default page size.
// Deferred page-changed notifications are scheduled through poster.
func NewController(poster dispatch.Poster, options Options) *Controller {
	if poster == nil {
		panic("poster cannot be nil")
	}
	options = options.normalize()

	return &Controller{
		poster:      poster,
		options:     options,
		logger:      logging.NewLogger("pagination"),
		currentPage: 1,
		pageSize:    options.DefaultPageSize,
		totalPages:  1,
	}
}

// WithLogger replaces the controller's logger.
func (c *Controller) WithLogger(logger zerolog.Logger) *Controller {
	c.logger = logger
	return c
}

// CurrentPage returns the 1-based current page.
func (c *Controller) CurrentPage() int { return c.currentPage }

// PageSize returns the current page size.
func (c *Controller) PageSize() int { return c.pageSize }

// TotalItems returns the last total supplied with SetTotalItems.
func (c *Controller) TotalItems() int { return c.totalItems }

// TotalPages returns max(1, ceil(TotalItems/PageSize)).
func (c *Controller) TotalPages() int { return c.totalPages }

// Loading reports whether a load for the current page is pending.
func (c *Controller) Loading() bool { return c.loading }

// Initialized reports whether the first load has completed.
func (c *Controller) Initialized() bool { return c.initialized }

// PageSizes returns the allowed page sizes.
func (c *Controller) PageSizes() []int { return slices.Clone(c.options.PageSizes) }

// CanGoFirst reports whether FirstPage would be accepted.
func (c *Controller) CanGoFirst() bool { return c.currentPage > 1 }

// CanGoPrevious reports whether PreviousPage would be accepted.
func (c *Controller) CanGoPrevious() bool { return c.currentPage > 1 }

// CanGoNext reports whether NextPage would be accepted.
func (c *Controller) CanGoNext() bool { return c.currentPage < c.totalPages }

// CanGoLast reports whether LastPage would be accepted.
func (c *Controller) CanGoLast() bool { return c.currentPage < c.totalPages }

// State returns a snapshot of the controller.
func (c *Controller) State() State {
	return State{
		CurrentPage:   c.currentPage,
		PageSize:      c.pageSize,
		TotalItems:    c.totalItems,
		TotalPages:    c.totalPages,
		Loading:       c.loading,
		Initialized:   c.initialized,
		CanGoFirst:    c.CanGoFirst(),
		CanGoPrevious: c.CanGoPrevious(),
		CanGoNext:     c.CanGoNext(),
		CanGoLast:     c.CanGoLast(),
	}
}

// SetTotalItems records the record count and recomputes the page count.
// The current page is clamped when the page count shrinks below it; if that moves
// an initialized controller to another page, a page-changed notification is raised.
// Negative counts are rejected.
func (c *Controller) SetTotalItems(n int) bool {
	if n < 0 {
		c.logger.Debug().Int("total_items", n).Msg("Rejected negative total")
		return false
	}

	prev := c.currentPage
	c.totalItems = n
	c.recompute()

	if c.currentPage != prev && c.initialized {
		c.loading = true
		c.schedulePageChanged()
	}
	c.Publish()
	return true
}

// SetPageSize switches to another configured page size. The cache invalidation
// signal fires before the page count is recomputed, and the page-size-changed
// notification fires exactly once after all state is consistent.
// Unknown sizes and the current size are rejected.
func (c *Controller) SetPageSize(size int) bool {
	if !c.options.Allows(size) {
		c.logger.Debug().Int("page_size", size).Msg("Rejected page size not in options")
		return false
	}
	if size == c.pageSize {
		return false
	}

	c.loading = true
	c.pageSize = size
	c.invalidate.each(func(fn func(int)) { fn(size) })
	c.recompute()

	c.logger.Debug().
		Int("page_size", size).
		Int("current_page", c.currentPage).
		Int("total_pages", c.totalPages).
		Msg("Page size changed")

	c.pageSizeChanged.each(func(fn func()) { fn() })
	c.Publish()
	return true
}

// GoToPage moves to page n. Pages outside [1, TotalPages] and the current page
// are rejected. The page-changed notification is only raised once the controller
// is initialized, and is delivered on the loop's next task.
func (c *Controller) GoToPage(n int) bool {
	if n < 1 || n > c.totalPages {
		c.logger.Debug().
			Int("page", n).
			Int("total_pages", c.totalPages).
			Msg("Rejected page out of range")
		return false
	}
	if n == c.currentPage {
		return false
	}

	c.loading = true
	c.currentPage = n
	if c.initialized {
		c.schedulePageChanged()
	}
	c.Publish()
	return true
}

// FirstPage moves to page 1.
func (c *Controller) FirstPage() bool {
	if !c.CanGoFirst() {
		return false
	}
	c.setLoading()
	return c.GoToPage(1)
}

// PreviousPage moves one page back.
func (c *Controller) PreviousPage() bool {
	if !c.CanGoPrevious() {
		return false
	}
	c.setLoading()
	return c.GoToPage(c.currentPage - 1)
}

// NextPage moves one page forward.
func (c *Controller) NextPage() bool {
	if !c.CanGoNext() {
		return false
	}
	c.setLoading()
	return c.GoToPage(c.currentPage + 1)
}

// LastPage moves to the last page.
func (c *Controller) LastPage() bool {
	if !c.CanGoLast() {
		return false
	}
	c.setLoading()
	return c.GoToPage(c.totalPages)
}

// Reset returns to page 1 with no records and marks the controller uninitialized.
// Reset observers clear the page cache and the observable collection. Page-changed
// notifications scheduled before the reset are dropped.
func (c *Controller) Reset() {
	c.generation++
	c.currentPage = 1
	c.totalItems = 0
	c.totalPages = 1
	c.initialized = false
	c.loading = false

	c.reset.each(func(fn func()) { fn() })
	c.Publish()
}

// SetLoading sets the loading flag without publishing.
func (c *Controller) SetLoading(loading bool) {
	c.loading = loading
}

// MarkInitialized records that the first load has completed.
func (c *Controller) MarkInitialized() {
	c.initialized = true
}

// Publish re-evaluates the capability flags and delivers a snapshot to state observers.
func (c *Controller) Publish() {
	if c.stateChanged.len() == 0 {
		return
	}
	s := c.State()
	c.stateChanged.each(func(fn func(State)) { fn(s) })
}

// OnPageChanged registers fn for page-changed notifications.
// The returned func removes the registration; it must run on the owning loop.
func (c *Controller) OnPageChanged(fn func()) (unsubscribe func()) {
	return c.pageChanged.add(fn)
}

// OnPageSizeChanged registers fn for page-size-changed notifications.
func (c *Controller) OnPageSizeChanged(fn func()) (unsubscribe func()) {
	return c.pageSizeChanged.add(fn)
}

// OnInvalidate registers fn to be told the new page size before anything else
// observes it. Page caches use it to drop entries fetched at the old size.
func (c *Controller) OnInvalidate(fn func(pageSize int)) (unsubscribe func()) {
	return c.invalidate.add(fn)
}

// OnReset registers fn for Reset.
func (c *Controller) OnReset(fn func()) (unsubscribe func()) {
	return c.reset.add(fn)
}

// OnStateChanged registers fn for state snapshots.
func (c *Controller) OnStateChanged(fn func(State)) (unsubscribe func()) {
	return c.stateChanged.add(fn)
}

func (c *Controller) setLoading() {
	c.loading = true
}

// recompute derives the page count and clamps the current page into range.
func (c *Controller) recompute() {
	c.totalPages = TotalPages(c.totalItems, c.pageSize)
	if c.currentPage > c.totalPages {
		c.currentPage = c.totalPages
	}
	if c.currentPage < 1 {
		c.currentPage = 1
	}
}

func (c *Controller) schedulePageChanged() {
	gen := c.generation
	c.poster.Post(func() {
		if gen != c.generation {
			c.logger.Debug().Msg("Dropped page change scheduled before reset")
			return
		}
		c.pageChanged.each(func(fn func()) { fn() })
	})
}

type subscription[F any] struct {
	id int
	fn F
}

// observers is an ordered list of callbacks. Callbacks may unsubscribe while being notified.
type observers[F any] struct {
	seq  int
	subs []subscription[F]
}

func (o *observers[F]) add(fn F) func() {
	o.seq++
	id := o.seq
	o.subs = append(o.subs, subscription[F]{id: id, fn: fn})

	return func() {
		o.subs = slices.DeleteFunc(o.subs, func(s subscription[F]) bool { return s.id == id })
	}
}

func (o *observers[F]) each(call func(F)) {
	for _, s := range slices.Clone(o.subs) {
		call(s.fn)
	}
}

func (o *observers[F]) len() int {
	return len(o.subs)
}
