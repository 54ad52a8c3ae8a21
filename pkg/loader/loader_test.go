package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Sternrassler/record-pager/internal/testutil"
	"github.com/Sternrassler/record-pager/pkg/dispatch"
	"github.com/Sternrassler/record-pager/pkg/pagination"
)

type ticket struct {
	ID    int
	Title string
}

func equalTickets(a, b *ticket) bool {
	return a.ID == b.ID && a.Title == b.Title
}

func tickets(n int) []*ticket {
	out := make([]*ticket, n)
	for i := range out {
		out[i] = &ticket{ID: i + 1, Title: fmt.Sprintf("ticket %d", i+1)}
	}
	return out
}

type harness struct {
	t       *testing.T
	queue   *dispatch.Queue
	ctrl    *pagination.Controller
	fetcher *testutil.MemoryFetcher[*ticket]
	loader  *Loader[*ticket]
}

func newHarness(t *testing.T, records []*ticket, config Config[*ticket]) *harness {
	t.Helper()

	q := &dispatch.Queue{}
	ctrl := pagination.NewController(q, pagination.DefaultOptions())
	f := testutil.NewMemoryFetcher(records)
	if config.Equal == nil {
		config.Equal = equalTickets
	}
	if config.Name == "" {
		config.Name = "test"
	}
	l := New[*ticket](context.Background(), q, ctrl, f, config)
	t.Cleanup(l.Close)

	return &harness{t: t, queue: q, ctrl: ctrl, fetcher: f, loader: l}
}

// await drains the queue until op finishes.
func (h *harness) await(op *Op) error {
	h.t.Helper()
	h.drainUntil(func() bool {
		select {
		case <-op.Done():
			return true
		default:
			return false
		}
	})
	return op.Err()
}

func (h *harness) drainUntil(cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.queue.Drain()
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			h.t.Fatal("condition not reached before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

// move runs a navigation, delivers its notification and waits for the resulting load.
func (h *harness) move(nav func() bool) error {
	h.t.Helper()
	if !nav() {
		h.t.Fatal("navigation rejected")
	}
	h.queue.Drain()
	op := h.loader.Pending()
	if op == nil {
		return nil
	}
	return h.await(op)
}

func (h *harness) queryAll() {
	h.t.Helper()
	if err := h.await(h.loader.QueryAll()); err != nil {
		h.t.Fatalf("QueryAll() error = %v", err)
	}
}

func (h *harness) assertPage(want []*ticket) {
	h.t.Helper()
	got := h.loader.Items().Items()
	if len(got) != len(want) {
		h.t.Fatalf("collection has %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if !equalTickets(got[i], want[i]) {
			h.t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestLoader_QueryAllLoadsFirstPage(t *testing.T) {
	records := tickets(47)
	h := newHarness(t, records, Config[*ticket]{})

	h.queryAll()

	s := h.ctrl.State()
	if s.TotalItems != 47 || s.TotalPages != 2 || s.CurrentPage != 1 {
		t.Errorf("State() = %+v, want 47 items on 2 pages at page 1", s)
	}
	if !s.Initialized || s.Loading {
		t.Errorf("Initialized=%v Loading=%v, want true/false", s.Initialized, s.Loading)
	}
	if !s.CanGoNext || s.CanGoPrevious {
		t.Errorf("CanGoNext=%v CanGoPrevious=%v, want true/false", s.CanGoNext, s.CanGoPrevious)
	}
	h.assertPage(records[:25])

	if h.fetcher.CountCalls() != 1 {
		t.Errorf("CountCalls() = %d, want 1", h.fetcher.CountCalls())
	}
}

func TestLoader_LoadCurrentPageIsIdempotent(t *testing.T) {
	h := newHarness(t, tickets(30), Config[*ticket]{})
	h.queryAll()

	before := h.loader.Items().Items()

	op := h.loader.LoadCurrentPage()
	select {
	case <-op.Done():
	default:
		t.Fatal("cache hit did not finish synchronously")
	}
	if op.Err() != nil {
		t.Errorf("LoadCurrentPage() error = %v", op.Err())
	}

	if got := h.fetcher.PageCalls(1, 25); got != 1 {
		t.Errorf("PageCalls(1, 25) = %d, want 1", got)
	}
	if h.ctrl.Loading() {
		t.Error("Loading() = true after cache hit")
	}

	after := h.loader.Items().Items()
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("record %d replaced by cache hit", i)
		}
	}
}

func TestLoader_NavigationScenario(t *testing.T) {
	records := tickets(100)
	h := newHarness(t, records, Config[*ticket]{})
	h.queryAll()

	if err := h.move(func() bool { return h.ctrl.GoToPage(4) }); err != nil {
		t.Fatalf("GoToPage(4) load error = %v", err)
	}
	h.assertPage(records[75:100])

	if err := h.move(h.ctrl.PreviousPage); err != nil {
		t.Fatalf("PreviousPage() load error = %v", err)
	}
	h.assertPage(records[50:75])

	s := h.ctrl.State()
	if s.CurrentPage != 3 || !s.CanGoNext || !s.CanGoLast {
		t.Errorf("State() = %+v, want page 3 with next and last enabled", s)
	}

	// Page 4 is cached by now.
	if err := h.move(h.ctrl.NextPage); err != nil {
		t.Fatalf("NextPage() load error = %v", err)
	}
	h.assertPage(records[75:100])
	if got := h.fetcher.PageCalls(4, 25); got != 1 {
		t.Errorf("PageCalls(4, 25) = %d, want 1", got)
	}
}

func TestLoader_EveryLoadMatchesFetchedPage(t *testing.T) {
	records := tickets(95)
	h := newHarness(t, records, Config[*ticket]{})
	h.queryAll()

	for _, page := range []int{3, 1, 4, 2, 4, 1} {
		if page != h.ctrl.CurrentPage() {
			if err := h.move(func() bool { return h.ctrl.GoToPage(page) }); err != nil {
				t.Fatalf("GoToPage(%d) load error = %v", page, err)
			}
		}
		start := (page - 1) * 25
		h.assertPage(records[start:min(start+25, len(records))])
	}
}

func TestLoader_PageSizeChangeInvalidatesCache(t *testing.T) {
	records := tickets(100)
	h := newHarness(t, records, Config[*ticket]{})
	h.queryAll()

	if err := h.move(h.ctrl.NextPage); err != nil {
		t.Fatalf("NextPage() load error = %v", err)
	}

	if err := h.move(func() bool { return h.ctrl.SetPageSize(10) }); err != nil {
		t.Fatalf("SetPageSize(10) load error = %v", err)
	}
	if h.ctrl.TotalPages() != 10 {
		t.Errorf("TotalPages() = %d, want 10", h.ctrl.TotalPages())
	}
	h.assertPage(records[10:20])

	if err := h.move(func() bool { return h.ctrl.SetPageSize(25) }); err != nil {
		t.Fatalf("SetPageSize(25) load error = %v", err)
	}
	h.assertPage(records[25:50])

	// Page 2 was cached at size 25 before, but the epoch changed twice since.
	if got := h.fetcher.PageCalls(2, 25); got != 2 {
		t.Errorf("PageCalls(2, 25) = %d, want 2", got)
	}
	if h.loader.pages.PageSize() != 25 || h.loader.pages.Len() != 1 {
		t.Errorf("cache epoch=%d len=%d, want 25/1", h.loader.pages.PageSize(), h.loader.pages.Len())
	}
}

func TestLoader_PageSizeChangeBeforeFirstLoad(t *testing.T) {
	h := newHarness(t, tickets(10), Config[*ticket]{})

	if !h.ctrl.SetPageSize(50) {
		t.Fatal("SetPageSize(50) rejected")
	}
	h.queue.Drain()

	if h.ctrl.Loading() {
		t.Error("Loading() = true after page size change with nothing to load")
	}
	if h.fetcher.Calls() != 0 {
		t.Errorf("Calls() = %d, want 0", h.fetcher.Calls())
	}
}

func TestLoader_FetchFailureKeepsPreviousPage(t *testing.T) {
	records := tickets(100)

	var reported []error
	h := newHarness(t, records, Config[*ticket]{OnError: func(err error) { reported = append(reported, err) }})
	h.queryAll()

	boom := errors.New("database unavailable")
	h.fetcher.FailPage(2, boom)

	err := h.move(h.ctrl.NextPage)

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("load error = %v, want *FetchError", err)
	}
	if fe.Op != opFetch || fe.Page != 2 || fe.PageSize != 25 || !errors.Is(err, boom) {
		t.Errorf("FetchError = %+v", fe)
	}
	if h.ctrl.Loading() {
		t.Error("Loading() = true after failed fetch")
	}
	h.assertPage(records[:25])
	if h.loader.pages.Has(2, 25) {
		t.Error("failed page was cached")
	}
	if len(reported) != 1 || !errors.Is(reported[0], boom) {
		t.Errorf("OnError received %v, want one error wrapping %v", reported, boom)
	}

	// The next attempt fetches again.
	h.fetcher.FailPage(2, nil)
	if err := h.await(h.loader.LoadCurrentPage()); err != nil {
		t.Fatalf("retry error = %v", err)
	}
	h.assertPage(records[25:50])
}

func TestLoader_LatestWins(t *testing.T) {
	records := tickets(100)
	h := newHarness(t, records, Config[*ticket]{})
	h.queryAll()

	release := h.fetcher.Block(2)
	defer release()

	h.ctrl.NextPage()
	h.queue.Drain()
	slow := h.loader.Pending()

	h.ctrl.NextPage()
	h.queue.Drain()
	fast := h.loader.Pending()

	if slow == nil || fast == nil || slow == fast {
		t.Fatal("expected two distinct pending loads")
	}
	if err := slow.Err(); !errors.Is(err, ErrSuperseded) {
		t.Errorf("superseded op error = %v, want ErrSuperseded", err)
	}

	if err := h.await(fast); err != nil {
		t.Fatalf("page 3 load error = %v", err)
	}
	h.assertPage(records[50:75])

	release()
	h.drainUntil(func() bool { return h.loader.pages.Has(2, 25) })

	h.assertPage(records[50:75])
	if h.ctrl.CurrentPage() != 3 || h.ctrl.Loading() {
		t.Errorf("CurrentPage=%d Loading=%v after stale completion", h.ctrl.CurrentPage(), h.ctrl.Loading())
	}
}

func TestLoader_CompletionAfterPageMovedReloads(t *testing.T) {
	records := tickets(100)
	h := newHarness(t, records, Config[*ticket]{})
	h.queryAll()

	release := h.fetcher.Block(2)
	h.ctrl.NextPage()
	h.queue.Drain()
	first := h.loader.Pending()

	// Let the page 2 completion reach the queue, then move on before it runs.
	release()
	h.drainUntilQueued()
	h.ctrl.NextPage()

	h.queue.Drain()
	if err := first.Err(); !errors.Is(err, ErrSuperseded) {
		t.Errorf("page 2 op error = %v, want ErrSuperseded", err)
	}

	op := h.loader.Pending()
	if op == nil {
		t.Fatal("no load pending for page 3")
	}
	if err := h.await(op); err != nil {
		t.Fatalf("page 3 load error = %v", err)
	}
	h.assertPage(records[50:75])

	if got := h.fetcher.PageCalls(3, 25); got != 1 {
		t.Errorf("PageCalls(3, 25) = %d, want 1", got)
	}
	if !h.loader.pages.Has(2, 25) {
		t.Error("completed page 2 was not cached")
	}
}

// drainUntilQueued waits without draining until a task is queued.
func (h *harness) drainUntilQueued() {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.queue.Len() == 0 {
		if time.Now().After(deadline) {
			h.t.Fatal("no task queued before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLoader_SingleFlight(t *testing.T) {
	h := newHarness(t, tickets(100), Config[*ticket]{})
	h.queryAll()

	release := h.fetcher.Block(2)
	h.ctrl.NextPage()
	h.queue.Drain()

	first := h.loader.Pending()
	second := h.loader.LoadCurrentPage()
	if first != second {
		t.Error("second load for the same page did not join the first")
	}

	release()
	if err := h.await(second); err != nil {
		t.Fatalf("load error = %v", err)
	}
	if got := h.fetcher.PageCalls(2, 25); got != 1 {
		t.Errorf("PageCalls(2, 25) = %d, want 1", got)
	}
}

func TestLoader_DiffPreservesIdentity(t *testing.T) {
	records := tickets(3)
	h := newHarness(t, records, Config[*ticket]{})
	h.queryAll()

	before := h.loader.Items().Items()

	changed := []*ticket{
		{ID: 1, Title: "ticket 1"},
		{ID: 2, Title: "ticket 2 (edited)"},
		{ID: 3, Title: "ticket 3"},
	}
	h.fetcher.SetRecords(changed)

	// A new page size misses the cache and returns the same three records.
	if err := h.move(func() bool { return h.ctrl.SetPageSize(50) }); err != nil {
		t.Fatalf("SetPageSize(50) load error = %v", err)
	}

	after := h.loader.Items().Items()
	if after[0] != before[0] || after[2] != before[2] {
		t.Error("unchanged records lost their identity")
	}
	if after[1] == before[1] || after[1].Title != "ticket 2 (edited)" {
		t.Errorf("middle record = %+v, want the edited record", after[1])
	}
}

func TestLoader_RefreshInBackground(t *testing.T) {
	records := tickets(30)
	h := newHarness(t, records, Config[*ticket]{})
	h.queryAll()

	release := h.fetcher.Block(2)
	defer release()
	h.ctrl.NextPage()
	h.queue.Drain()
	pending := h.loader.Pending()

	h.fetcher.SetRecords(tickets(60))
	if err := h.await(h.loader.RefreshInBackground()); err != nil {
		t.Fatalf("RefreshInBackground() error = %v", err)
	}

	if h.ctrl.TotalItems() != 60 || h.ctrl.TotalPages() != 3 {
		t.Errorf("totals = %d/%d, want 60/3", h.ctrl.TotalItems(), h.ctrl.TotalPages())
	}
	if !h.ctrl.Loading() {
		t.Error("refresh cleared the loading flag of a foreground load")
	}

	release()
	if err := h.await(pending); err != nil {
		t.Fatalf("page 2 load error = %v", err)
	}
	if h.ctrl.Loading() {
		t.Error("Loading() = true after foreground load")
	}
	if got := h.fetcher.PageCalls(2, 25); got != 1 {
		t.Errorf("PageCalls(2, 25) = %d, want 1", got)
	}
}

func TestLoader_RefreshClampsCurrentPage(t *testing.T) {
	records := tickets(30)
	h := newHarness(t, records, Config[*ticket]{})
	h.queryAll()

	if err := h.move(h.ctrl.NextPage); err != nil {
		t.Fatalf("NextPage() load error = %v", err)
	}

	h.fetcher.SetRecords(records[:10])
	if err := h.await(h.loader.RefreshInBackground()); err != nil {
		t.Fatalf("RefreshInBackground() error = %v", err)
	}
	h.queue.Drain()

	if h.ctrl.CurrentPage() != 1 || h.ctrl.TotalPages() != 1 {
		t.Errorf("page %d of %d, want 1 of 1", h.ctrl.CurrentPage(), h.ctrl.TotalPages())
	}
	if h.ctrl.Loading() {
		t.Error("Loading() = true after clamped reload")
	}
	// Page 1 is served from the cache.
	h.assertPage(records[:25])
}

func TestLoader_RefreshCountFailure(t *testing.T) {
	h := newHarness(t, tickets(30), Config[*ticket]{})
	h.queryAll()

	h.fetcher.FailCount(errors.New("timeout"))
	err := h.await(h.loader.RefreshInBackground())

	var fe *FetchError
	if !errors.As(err, &fe) || fe.Op != opCount {
		t.Fatalf("RefreshInBackground() error = %v, want count FetchError", err)
	}
	if h.ctrl.TotalItems() != 30 {
		t.Errorf("TotalItems() = %d, want 30", h.ctrl.TotalItems())
	}
}

// cachedCount answers Count from a cached total, like the Redis tier does.
type cachedCount struct {
	*testutil.MemoryFetcher[*ticket]

	mu        sync.Mutex
	total     int
	refreshes int
}

func (c *cachedCount) Count(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total, nil
}

func (c *cachedCount) RefreshCount(ctx context.Context) (int, error) {
	total, err := c.MemoryFetcher.Count(ctx)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total = total
	c.refreshes++
	return total, nil
}

func TestLoader_RefreshBypassesCachedCount(t *testing.T) {
	q := &dispatch.Queue{}
	ctrl := pagination.NewController(q, pagination.DefaultOptions())
	f := &cachedCount{MemoryFetcher: testutil.NewMemoryFetcher(tickets(30)), total: 30}
	l := New[*ticket](context.Background(), q, ctrl, f, Config[*ticket]{Name: "refresh-cached", Equal: equalTickets})
	t.Cleanup(l.Close)
	h := &harness{t: t, queue: q, ctrl: ctrl, fetcher: f.MemoryFetcher, loader: l}

	h.queryAll()
	if f.refreshes != 0 {
		t.Errorf("QueryAll() refreshed the cached count %d times, want 0", f.refreshes)
	}

	f.SetRecords(tickets(31))
	if err := h.await(l.RefreshInBackground()); err != nil {
		t.Fatalf("RefreshInBackground() error = %v", err)
	}
	if ctrl.TotalItems() != 31 || ctrl.TotalPages() != 2 {
		t.Errorf("totals = %d/%d, want 31/2", ctrl.TotalItems(), ctrl.TotalPages())
	}
	if f.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", f.refreshes)
	}
}

func TestLoader_QueryAllCountFailure(t *testing.T) {
	h := newHarness(t, tickets(30), Config[*ticket]{})
	h.fetcher.FailCount(errors.New("connection refused"))

	err := h.await(h.loader.QueryAll())

	var fe *FetchError
	if !errors.As(err, &fe) || fe.Op != opCount {
		t.Fatalf("QueryAll() error = %v, want count FetchError", err)
	}
	if h.ctrl.Loading() || h.ctrl.Initialized() {
		t.Errorf("Loading=%v Initialized=%v, want false/false", h.ctrl.Loading(), h.ctrl.Initialized())
	}
	if h.fetcher.Calls() != 0 {
		t.Errorf("Calls() = %d, want 0", h.fetcher.Calls())
	}
}

func TestLoader_ResetClearsCacheAndItems(t *testing.T) {
	h := newHarness(t, tickets(60), Config[*ticket]{Name: "reset-test"})
	h.queryAll()

	release := h.fetcher.Block(2)
	defer release()
	h.ctrl.NextPage()
	h.queue.Drain()
	pending := h.loader.Pending()

	h.ctrl.Reset()

	if h.loader.Items().Len() != 0 || h.loader.pages.Len() != 0 {
		t.Errorf("items=%d cached=%d after reset, want 0/0", h.loader.Items().Len(), h.loader.pages.Len())
	}
	if !errors.Is(pending.Err(), ErrSuperseded) {
		t.Errorf("pending op error = %v, want ErrSuperseded", pending.Err())
	}
	if h.loader.Pending() != nil {
		t.Error("load still pending after reset")
	}

	release()
	stale := StaleDiscards.WithLabelValues("reset-test")
	h.drainUntil(func() bool { return promtest.ToFloat64(stale) >= 1 })

	if h.loader.pages.Len() != 0 {
		t.Error("completion from before the reset was cached")
	}
}

func TestLoader_QueryAllTwiceSupersedesFirst(t *testing.T) {
	records := tickets(10)
	h := newHarness(t, records, Config[*ticket]{})

	first := h.loader.QueryAll()
	second := h.loader.QueryAll()

	if err := h.await(first); !errors.Is(err, ErrSuperseded) {
		t.Errorf("first QueryAll() error = %v, want ErrSuperseded", err)
	}
	if err := h.await(second); err != nil {
		t.Fatalf("second QueryAll() error = %v", err)
	}
	h.assertPage(records)
}

func TestLoader_Prefetch(t *testing.T) {
	records := tickets(100)
	h := newHarness(t, records, Config[*ticket]{PrefetchAhead: 2})
	h.queryAll()

	h.drainUntil(func() bool { return h.loader.pages.Has(2, 25) && h.loader.pages.Has(3, 25) })

	if err := h.move(h.ctrl.NextPage); err != nil {
		t.Fatalf("NextPage() load error = %v", err)
	}
	h.assertPage(records[25:50])
	if got := h.fetcher.PageCalls(2, 25); got != 1 {
		t.Errorf("PageCalls(2, 25) = %d, want 1", got)
	}
}

func TestLoader_SlowPrefetchDoesNotStallLaterPages(t *testing.T) {
	records := tickets(100)
	h := newHarness(t, records, Config[*ticket]{PrefetchAhead: 1})

	release := h.fetcher.Block(2)
	defer release()
	h.queryAll()

	if err := h.move(func() bool { return h.ctrl.GoToPage(3) }); err != nil {
		t.Fatalf("GoToPage(3) load error = %v", err)
	}
	h.drainUntil(func() bool { return h.loader.pages.Has(4, 25) })

	release()
	h.drainUntil(func() bool { return h.loader.pages.Has(2, 25) })
	if got := h.fetcher.PageCalls(2, 25); got != 1 {
		t.Errorf("PageCalls(2, 25) = %d, want 1", got)
	}
	h.assertPage(records[50:75])
}

func TestLoader_Close(t *testing.T) {
	h := newHarness(t, tickets(60), Config[*ticket]{})
	h.queryAll()

	release := h.fetcher.Block(2)
	defer release()
	h.ctrl.NextPage()
	h.queue.Drain()
	pending := h.loader.Pending()

	h.loader.Close()

	if !errors.Is(pending.Err(), ErrClosed) {
		t.Errorf("pending op error = %v, want ErrClosed", pending.Err())
	}
	if err := h.loader.LoadCurrentPage().Err(); !errors.Is(err, ErrClosed) {
		t.Errorf("LoadCurrentPage() after Close error = %v, want ErrClosed", err)
	}

	// Detached from the controller: navigation schedules nothing the loader acts on.
	h.ctrl.PreviousPage()
	h.queue.Drain()
	if h.loader.Pending() != nil {
		t.Error("closed loader started a load")
	}
}

func TestFetchError(t *testing.T) {
	inner := errors.New("boom")

	fetch := &FetchError{Op: opFetch, Page: 3, PageSize: 25, Err: inner}
	if fetch.Error() != "fetch page 3 (size 25) failed: boom" {
		t.Errorf("Error() = %q", fetch.Error())
	}
	if !errors.Is(fetch, inner) {
		t.Error("FetchError does not unwrap")
	}

	count := &FetchError{Op: opCount, Err: inner}
	if count.Error() != "count failed: boom" {
		t.Errorf("Error() = %q", count.Error())
	}
}
