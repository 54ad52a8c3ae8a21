package loader

import (
	"context"
	"errors"

	"github.com/Sternrassler/record-pager/pkg/dispatch"
	"github.com/Sternrassler/record-pager/pkg/pagination"
)

// Page is a consistent snapshot of a view's state and records.
type Page[T any] struct {
	State pagination.State `json:"state"`
	Items []T              `json:"items"`
}

// View gives goroutines outside the loop access to a Loader.
//
// Every method runs its work as a task on the loop and waits for it. Commands
// that change the page return once the resulting page has been applied, the
// load failed, or the request was rejected; when a newer request overtakes the
// one a command started, the command follows the newer one.
type View[T any] struct {
	loop   *dispatch.Loop
	loader *Loader[T]
}

// NewView wraps loader, which must be confined to loop.
func NewView[T any](loop *dispatch.Loop, loader *Loader[T]) *View[T] {
	return &View[T]{loop: loop, loader: loader}
}

// Name returns the loader's name.
func (v *View[T]) Name() string {
	return v.loader.config.Name
}

// State returns the controller's state.
func (v *View[T]) State(ctx context.Context) (pagination.State, error) {
	var s pagination.State
	err := v.loop.Do(ctx, func() { s = v.loader.ctrl.State() })
	return s, err
}

// Items returns a copy of the records on the current page.
func (v *View[T]) Items(ctx context.Context) ([]T, error) {
	var items []T
	err := v.loop.Do(ctx, func() { items = v.loader.items.Items() })
	return items, err
}

// Snapshot returns the state and records taken in the same loop task.
func (v *View[T]) Snapshot(ctx context.Context) (Page[T], error) {
	var p Page[T]
	err := v.loop.Do(ctx, func() {
		p = Page[T]{State: v.loader.ctrl.State(), Items: v.loader.items.Items()}
	})
	return p, err
}

// First moves to the first page. It reports false if the move was rejected.
func (v *View[T]) First(ctx context.Context) (bool, error) {
	return v.navigate(ctx, v.loader.ctrl.FirstPage)
}

// Previous moves one page back.
func (v *View[T]) Previous(ctx context.Context) (bool, error) {
	return v.navigate(ctx, v.loader.ctrl.PreviousPage)
}

// Next moves one page forward.
func (v *View[T]) Next(ctx context.Context) (bool, error) {
	return v.navigate(ctx, v.loader.ctrl.NextPage)
}

// Last moves to the last page.
func (v *View[T]) Last(ctx context.Context) (bool, error) {
	return v.navigate(ctx, v.loader.ctrl.LastPage)
}

// GoTo moves to page n.
func (v *View[T]) GoTo(ctx context.Context, n int) (bool, error) {
	return v.navigate(ctx, func() bool { return v.loader.ctrl.GoToPage(n) })
}

// SetPageSize switches the page size. Sizes outside the configured options are rejected.
func (v *View[T]) SetPageSize(ctx context.Context, size int) (bool, error) {
	var accepted bool
	if err := v.loop.Do(ctx, func() { accepted = v.loader.ctrl.SetPageSize(size) }); err != nil || !accepted {
		return false, err
	}
	return true, v.settle(ctx)
}

// QueryAll resets the view, queries the record count and loads page 1.
func (v *View[T]) QueryAll(ctx context.Context) error {
	return v.run(ctx, v.loader.QueryAll)
}

// Reload loads the current page, from the page cache when possible.
func (v *View[T]) Reload(ctx context.Context) error {
	return v.run(ctx, v.loader.LoadCurrentPage)
}

// Refresh re-queries the record count without reloading the current page.
func (v *View[T]) Refresh(ctx context.Context) error {
	var op *Op
	if err := v.loop.Do(ctx, func() { op = v.loader.RefreshInBackground() }); err != nil {
		return err
	}
	return op.Wait(ctx)
}

// Reset returns the view to page 1 with no records.
func (v *View[T]) Reset(ctx context.Context) error {
	return v.loop.Do(ctx, v.loader.ctrl.Reset)
}

// Subscribe registers fn for state snapshots. fn runs on the loop and must not
// block or call back into the View. The returned func removes the subscription.
func (v *View[T]) Subscribe(ctx context.Context, fn func(pagination.State)) (func(), error) {
	var unsubscribe func()
	if err := v.loop.Do(ctx, func() { unsubscribe = v.loader.ctrl.OnStateChanged(fn) }); err != nil {
		return nil, err
	}
	return func() { v.loop.Post(unsubscribe) }, nil
}

// Close closes the loader.
func (v *View[T]) Close(ctx context.Context) error {
	return v.loop.Do(ctx, v.loader.Close)
}

func (v *View[T]) navigate(ctx context.Context, move func() bool) (bool, error) {
	var accepted bool
	err := v.loop.Do(ctx, func() {
		accepted = move()
		// No page-changed notification is raised before the first load.
		if accepted && !v.loader.ctrl.Initialized() {
			v.loader.LoadCurrentPage()
		}
	})
	if err != nil || !accepted {
		return false, err
	}
	return true, v.settle(ctx)
}

func (v *View[T]) run(ctx context.Context, start func() *Op) error {
	var op *Op
	if err := v.loop.Do(ctx, func() { op = start() }); err != nil {
		return err
	}
	if err := op.Wait(ctx); !errors.Is(err, ErrSuperseded) {
		return err
	}
	return v.settle(ctx)
}

// settle waits for the newest foreground load, following it each time it is superseded.
// The loop task that reads the pending op runs after any page change already scheduled.
func (v *View[T]) settle(ctx context.Context) error {
	for {
		var op *Op
		if err := v.loop.Do(ctx, func() { op = v.loader.Pending() }); err != nil {
			return err
		}
		if op == nil {
			return nil
		}
		if err := op.Wait(ctx); !errors.Is(err, ErrSuperseded) {
			return err
		}
	}
}
