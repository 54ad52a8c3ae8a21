// Command pager-proxy serves paged list views of tickets, stations and
// collections over HTTP. Each view keeps its own position and page cache;
// records come from SQLite, PostgreSQL or a remote record API, optionally
// behind a shared Redis tier.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/record-pager/internal/config"
	"github.com/Sternrassler/record-pager/pkg/dispatch"
	"github.com/Sternrassler/record-pager/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.Log.Level),
		Pretty:  cfg.Log.Format == "console",
		Service: "pager-proxy",
		Output:  os.Stderr,
	})
	logger := logging.NewLogger("pager-proxy")

	logger.Info().
		Str("addr", cfg.Server.Addr()).
		Str("source", cfg.Source).
		Ints("page_sizes", cfg.Pager.PageSizes).
		Msg("Starting pager proxy")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src, err := openSources(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open record source")
	}
	defer src.Close()

	loop := dispatch.NewLoop()
	go loop.Run(ctx)

	views := newViews(ctx, loop, src, cfg.Pager, logger)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      newRouter(views, cfg.Pager.RequestTimeout, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Addr()).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	views.close(shutdownCtx)
	cancel()
	<-loop.Stopped()

	logger.Info().Msg("Server stopped")
}
