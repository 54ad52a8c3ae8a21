package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/record-pager/internal/config"
	"github.com/Sternrassler/record-pager/pkg/cache"
	"github.com/Sternrassler/record-pager/pkg/client"
	"github.com/Sternrassler/record-pager/pkg/logging"
	"github.com/Sternrassler/record-pager/pkg/pagination"
	"github.com/Sternrassler/record-pager/pkg/ratelimit"
	"github.com/Sternrassler/record-pager/pkg/records"
	"github.com/Sternrassler/record-pager/pkg/store/postgres"
	"github.com/Sternrassler/record-pager/pkg/store/sqlite"
)

// sources holds one fetcher per list view.
type sources struct {
	tickets     pagination.Fetcher[*records.Ticket]
	stations    pagination.Fetcher[*records.Station]
	collections pagination.Fetcher[*records.Collection]

	closers []func()
}

func (s *sources) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openSources connects the configured backend and wraps it with the Redis tier when enabled.
func openSources(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*sources, error) {
	s := &sources{}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		s.closers = append(s.closers, func() { rdb.Close() })
		logger.Info().Str("addr", cfg.Redis.Addr()).Dur("ttl", cfg.Redis.TTL).Msg("Connected to Redis")
	}

	switch cfg.Source {
	case config.SourceSQLite:
		db, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			s.Close()
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			s.closers = append(s.closers, func() { sqlDB.Close() })
		}
		if cfg.SQLite.Seed > 0 {
			n, err := seedSQLite(ctx, db, cfg.SQLite.Seed)
			if err != nil {
				s.Close()
				return nil, err
			}
			if n > 0 {
				logger.Info().Int("tickets", n).Msg("Seeded empty SQLite database")
			}
		}
		s.tickets = sqlite.Tickets(db)
		s.stations = sqlite.Stations(db)
		s.collections = sqlite.Collections(db)
		logger.Info().Str("path", cfg.SQLite.Path).Msg("Opened SQLite database")

	case config.SourcePostgres:
		pool, err := postgres.NewPool(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN(),
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
		})
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)
		if cfg.Postgres.Migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				s.Close()
				return nil, err
			}
		}
		s.tickets = postgres.Tickets(pool)
		s.stations = postgres.Stations(pool)
		s.collections = postgres.Collections(pool)
		logger.Info().Str("host", cfg.Postgres.Host).Msg("Connected to PostgreSQL")

	case config.SourceRemote:
		clientCfg := client.DefaultConfig(cfg.API.BaseURL, cfg.API.UserAgent)
		clientCfg.Timeout = cfg.API.Timeout
		if rdb != nil {
			// Instances behind the same Redis share the API's quota.
			clientCfg.Gate = ratelimit.NewTracker(rdb, logging.NewLogger("ratelimit"))
		}
		c, err := client.New(clientCfg)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create record API client: %w", err)
		}
		s.tickets = client.NewPageSource[records.Ticket](c, "tickets")
		s.stations = client.NewPageSource[records.Station](c, "stations")
		s.collections = client.NewPageSource[records.Collection](c, "collections")
		logger.Info().Str("base_url", cfg.API.BaseURL).Msg("Using remote record API")

	default:
		s.Close()
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}

	if rdb != nil {
		s.withRedis(cache.NewManager(rdb), cfg.Redis.TTL)
	}

	return s, nil
}

// withRedis puts the shared Redis tier in front of every fetcher.
func (s *sources) withRedis(manager *cache.Manager, ttl time.Duration) {
	s.tickets = cache.NewCachingFetcher(s.tickets, manager, "tickets", ttl)
	s.stations = cache.NewCachingFetcher(s.stations, manager, "stations", ttl)
	s.collections = cache.NewCachingFetcher(s.collections, manager, "collections", ttl)
}
