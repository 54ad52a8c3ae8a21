package main

import (
	"context"
	"slices"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/record-pager/internal/config"
	"github.com/Sternrassler/record-pager/pkg/dispatch"
	"github.com/Sternrassler/record-pager/pkg/loader"
	"github.com/Sternrassler/record-pager/pkg/pagination"
	"github.com/Sternrassler/record-pager/pkg/records"
)

// listView is the record-type independent surface of a loader.View.
type listView interface {
	Name() string
	First(ctx context.Context) (bool, error)
	Previous(ctx context.Context) (bool, error)
	Next(ctx context.Context) (bool, error)
	Last(ctx context.Context) (bool, error)
	GoTo(ctx context.Context, n int) (bool, error)
	SetPageSize(ctx context.Context, size int) (bool, error)
	QueryAll(ctx context.Context) error
	Reload(ctx context.Context) error
	Refresh(ctx context.Context) error
	Reset(ctx context.Context) error
	Close(ctx context.Context) error
	snapshot(ctx context.Context) (any, error)
}

type handle[T any] struct {
	*loader.View[T]
}

func (h handle[T]) snapshot(ctx context.Context) (any, error) {
	return h.Snapshot(ctx)
}

// viewSet is the list views served by the proxy. Every view runs on the same loop.
type viewSet struct {
	loop  *dispatch.Loop
	views map[string]listView
}

func newViewSet(loop *dispatch.Loop) *viewSet {
	return &viewSet{loop: loop, views: make(map[string]listView)}
}

func (s *viewSet) get(name string) (listView, bool) {
	v, ok := s.views[name]
	return v, ok
}

func (s *viewSet) names() []string {
	names := make([]string, 0, len(s.views))
	for name := range s.views {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (s *viewSet) close(ctx context.Context) {
	for _, v := range s.views {
		_ = v.Close(ctx)
	}
}

// addView creates a loader for fetcher on the set's loop and registers its view.
func addView[T any](ctx context.Context, s *viewSet, name string, fetcher pagination.Fetcher[T], equal func(a, b T) bool, cfg config.PagerConfig, logger zerolog.Logger) {
	lcfg := loader.Config[T]{
		Name:          name,
		Equal:         equal,
		PrefetchAhead: cfg.PrefetchAhead,
		Batch:         cfg.Batch(),
		FetchTimeout:  cfg.FetchTimeout,
		OnError: func(err error) {
			logger.Debug().Err(err).Str("view", name).Msg("View load failed")
		},
	}

	var l *loader.Loader[T]
	// Loader and controller are confined to the loop from the start.
	_ = s.loop.Do(ctx, func() {
		ctrl := pagination.NewController(s.loop, cfg.Options())
		l = loader.New(ctx, s.loop, ctrl, fetcher, lcfg)
	})
	if l == nil {
		return
	}
	s.views[name] = handle[T]{loader.NewView(s.loop, l)}
}

// newViews registers the ticket, station and collection views.
func newViews(ctx context.Context, loop *dispatch.Loop, src *sources, cfg config.PagerConfig, logger zerolog.Logger) *viewSet {
	set := newViewSet(loop)
	addView(ctx, set, "tickets", src.tickets, (*records.Ticket).Equal, cfg, logger)
	addView(ctx, set, "stations", src.stations, (*records.Station).Equal, cfg, logger)
	addView(ctx, set, "collections", src.collections, (*records.Collection).Equal, cfg, logger)
	return set
}
