package loader

import (
	"errors"
	"fmt"
)

// ErrSuperseded is returned by an operation whose result was discarded because a
// newer request, a page change or a reset overtook it.
var ErrSuperseded = errors.New("load superseded by a newer request")

// ErrClosed is returned by operations on a closed loader.
var ErrClosed = errors.New("loader closed")

var errNegativeCount = errors.New("negative record count")

// FetchError reports a failed page fetch or count query. The collection keeps
// its previous contents and nothing is cached.
type FetchError struct {
	Op       string // "fetch" or "count"
	Page     int
	PageSize int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Op == opCount {
		return fmt.Sprintf("count failed: %v", e.Err)
	}
	return fmt.Sprintf("fetch page %d (size %d) failed: %v", e.Page, e.PageSize, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

const (
	opFetch = "fetch"
	opCount = "count"
)
