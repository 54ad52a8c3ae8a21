package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/record-pager/pkg/dispatch"
	"github.com/Sternrassler/record-pager/pkg/loader"
	"github.com/Sternrassler/record-pager/pkg/metrics"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type navigationResponse struct {
	Accepted bool `json:"accepted"`
	Page     any  `json:"page"`
}

type server struct {
	views   *viewSet
	timeout time.Duration
	logger  zerolog.Logger
}

// newRouter wires the view endpoints, health check and metrics.
//
//	GET  /views                         names of the list views
//	GET  /views/{name}                  state and records of the current page
//	POST /views/{name}/{action}         first, previous, next, last, query, reload, refresh, reset
//	PUT  /views/{name}/page/{n}         go to page n
//	PUT  /views/{name}/size/{n}         switch the page size
func newRouter(views *viewSet, timeout time.Duration, logger zerolog.Logger) *chi.Mux {
	s := &server{views: views, timeout: timeout, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/views", func(r chi.Router) {
		r.Get("/", s.list)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", s.snapshot)
			r.Post("/{action}", s.action)
			r.Put("/page/{n}", s.goTo)
			r.Put("/size/{n}", s.setPageSize)
		})
	})

	return r
}

// requestLogger logs every request once it has been served.
func requestLogger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Str("request_id", middleware.GetReqID(r.Context())).
					Msg("HTTP request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.views.loop.Stopped():
		s.respondError(w, http.StatusServiceUnavailable, "loop_stopped", "view loop is not running")
	default:
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

func (s *server) list(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string][]string{"views": s.views.names()})
}

func (s *server) snapshot(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	page, err := v.snapshot(ctx)
	if err != nil {
		s.respondViewError(w, v, err)
		return
	}
	s.respondJSON(w, http.StatusOK, page)
}

func (s *server) action(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}

	var nav func(context.Context) (bool, error)
	var cmd func(context.Context) error
	switch chi.URLParam(r, "action") {
	case "first":
		nav = v.First
	case "previous":
		nav = v.Previous
	case "next":
		nav = v.Next
	case "last":
		nav = v.Last
	case "query":
		cmd = v.QueryAll
	case "reload":
		cmd = v.Reload
	case "refresh":
		cmd = v.Refresh
	case "reset":
		cmd = v.Reset
	default:
		s.respondError(w, http.StatusNotFound, "unknown_action", "unknown action "+strconv.Quote(chi.URLParam(r, "action")))
		return
	}

	if nav != nil {
		s.navigate(w, r, v, nav)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	if err := cmd(ctx); err != nil {
		s.respondViewError(w, v, err)
		return
	}
	s.respondPage(w, ctx, v, true)
}

func (s *server) goTo(w http.ResponseWriter, r *http.Request) {
	s.withNumber(w, r, func(v listView, n int) func(context.Context) (bool, error) {
		return func(ctx context.Context) (bool, error) { return v.GoTo(ctx, n) }
	})
}

func (s *server) setPageSize(w http.ResponseWriter, r *http.Request) {
	s.withNumber(w, r, func(v listView, n int) func(context.Context) (bool, error) {
		return func(ctx context.Context) (bool, error) { return v.SetPageSize(ctx, n) }
	})
}

func (s *server) withNumber(w http.ResponseWriter, r *http.Request, bind func(listView, int) func(context.Context) (bool, error)) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_number", "path parameter must be an integer")
		return
	}
	s.navigate(w, r, v, bind(v, n))
}

// navigate runs a page move. A rejected move answers 409 with the unchanged page.
func (s *server) navigate(w http.ResponseWriter, r *http.Request, v listView, move func(context.Context) (bool, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	accepted, err := move(ctx)
	if err != nil {
		s.respondViewError(w, v, err)
		return
	}
	s.respondPage(w, ctx, v, accepted)
}

func (s *server) respondPage(w http.ResponseWriter, ctx context.Context, v listView, accepted bool) {
	page, err := v.snapshot(ctx)
	if err != nil {
		s.respondViewError(w, v, err)
		return
	}
	status := http.StatusOK
	if !accepted {
		status = http.StatusConflict
	}
	s.respondJSON(w, status, navigationResponse{Accepted: accepted, Page: page})
}

func (s *server) view(w http.ResponseWriter, r *http.Request) (listView, bool) {
	name := chi.URLParam(r, "name")
	v, ok := s.views.get(name)
	if !ok {
		s.respondError(w, http.StatusNotFound, "not_found", "no view named "+strconv.Quote(name))
	}
	return v, ok
}

func (s *server) respondViewError(w http.ResponseWriter, v listView, err error) {
	var fe *loader.FetchError
	switch {
	case errors.As(err, &fe):
		s.respondError(w, http.StatusBadGateway, "fetch_failed", err.Error())
	case errors.Is(err, loader.ErrClosed), errors.Is(err, dispatch.ErrClosed):
		s.respondError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	case errors.Is(err, loader.ErrSuperseded):
		s.respondError(w, http.StatusConflict, "superseded", "a newer request replaced this one")
	case errors.Is(err, context.DeadlineExceeded):
		s.respondError(w, http.StatusGatewayTimeout, "timeout", "view did not settle in time")
	case errors.Is(err, context.Canceled):
		// The client went away.
	default:
		s.logger.Error().Err(err).Str("view", v.Name()).Msg("View request failed")
		s.respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (s *server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{Error: code, Message: message})
}
