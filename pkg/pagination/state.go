package pagination

import "slices"

// State is a read-only snapshot of a controller.
type State struct {
	CurrentPage int `json:"current_page"`
	PageSize    int `json:"page_size"`
	TotalItems  int `json:"total_items"`
	TotalPages  int `json:"total_pages"`

	// Loading is true while a fetch for the current page is in flight or about to be applied.
	Loading bool `json:"is_loading"`

	// Initialized is false until the first successful load completes.
	Initialized bool `json:"is_initialized"`

	CanGoFirst    bool `json:"can_go_first"`
	CanGoPrevious bool `json:"can_go_previous"`
	CanGoNext     bool `json:"can_go_next"`
	CanGoLast     bool `json:"can_go_last"`
}

// TotalPages returns max(1, ceil(totalItems/pageSize)).
// A non-positive page size yields a single page.
func TotalPages(totalItems, pageSize int) int {
	if totalItems <= 0 || pageSize <= 0 {
		return 1
	}
	pages := totalItems / pageSize
	if totalItems%pageSize != 0 {
		pages++
	}
	return pages
}

// Offset returns the zero-based index of the first record on page.
func Offset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}

// Options configures the page sizes a controller accepts.
type Options struct {
	// PageSizes lists the allowed page sizes, in display order.
	PageSizes []int

	// DefaultPageSize is the page size a new controller starts with.
	// It must be one of PageSizes.
	DefaultPageSize int
}

// DefaultOptions returns the page sizes offered by every list view.
func DefaultOptions() Options {
	return Options{
		PageSizes:       []int{10, 25, 50, 100},
		DefaultPageSize: 25,
	}
}

// Allows reports whether size is one of the configured page sizes.
func (o Options) Allows(size int) bool {
	return size > 0 && slices.Contains(o.PageSizes, size)
}

// normalize drops non-positive sizes and falls back to defaults where needed.
func (o Options) normalize() Options {
	sizes := make([]int, 0, len(o.PageSizes))
	for _, s := range o.PageSizes {
		if s > 0 && !slices.Contains(sizes, s) {
			sizes = append(sizes, s)
		}
	}
	if len(sizes) == 0 {
		return DefaultOptions()
	}

	out := Options{PageSizes: sizes, DefaultPageSize: o.DefaultPageSize}
	if !out.Allows(out.DefaultPageSize) {
		out.DefaultPageSize = sizes[0]
	}
	return out
}
