// Package config loads the pager-proxy configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/Sternrassler/record-pager/pkg/pagination"
)

// Source backends for the list views.
const (
	SourceSQLite   = "sqlite"
	SourcePostgres = "postgres"
	SourceRemote   = "remote"
)

type Config struct {
	Server   ServerConfig
	Pager    PagerConfig
	Source   string `env:"PAGER_SOURCE" envDefault:"sqlite"`
	Redis    RedisConfig
	Postgres PostgresConfig
	SQLite   SQLiteConfig
	API      APIConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"SERVER_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PagerConfig holds the options shared by every list view.
type PagerConfig struct {
	PageSizes       []int         `env:"PAGER_PAGE_SIZES" envSeparator:"," envDefault:"10,25,50,100"`
	DefaultPageSize int           `env:"PAGER_DEFAULT_PAGE_SIZE" envDefault:"25"`
	PrefetchAhead   int           `env:"PAGER_PREFETCH_AHEAD" envDefault:"1"`
	PrefetchWorkers int           `env:"PAGER_PREFETCH_WORKERS" envDefault:"4"`
	FetchTimeout    time.Duration `env:"PAGER_FETCH_TIMEOUT" envDefault:"15s"`
	// Per call from an HTTP handler into a view.
	RequestTimeout time.Duration `env:"PAGER_REQUEST_TIMEOUT" envDefault:"30s"`
}

// Options returns the controller options.
func (p PagerConfig) Options() pagination.Options {
	return pagination.Options{
		PageSizes:       slices.Clone(p.PageSizes),
		DefaultPageSize: p.DefaultPageSize,
	}
}

// Batch returns the prefetch worker pool configuration.
func (p PagerConfig) Batch() pagination.BatchConfig {
	return pagination.BatchConfig{
		MaxConcurrency: p.PrefetchWorkers,
		Timeout:        p.FetchTimeout,
	}
}

type RedisConfig struct {
	Enabled  bool          `env:"REDIS_ENABLED" envDefault:"false"`
	Host     string        `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int           `env:"REDIS_PORT" envDefault:"6379"`
	Password string        `env:"REDIS_PASSWORD" envDefault:""`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	TTL      time.Duration `env:"REDIS_TTL" envDefault:"30s"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type PostgresConfig struct {
	Host            string        `env:"DB_HOST" envDefault:"localhost"`
	Port            int           `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER" envDefault:"pager"`
	Password        string        `env:"DB_PASSWORD" envDefault:"secret"`
	Name            string        `env:"DB_NAME" envDefault:"pager"`
	SSLMode         string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns        int           `env:"DB_MAX_CONNS" envDefault:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" envDefault:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	Migrate         bool          `env:"DB_MIGRATE" envDefault:"true"`
}

func (d PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

type SQLiteConfig struct {
	Path string `env:"SQLITE_PATH" envDefault:"pager.db"`
	// Number of demo tickets written to an empty database.
	Seed int `env:"SQLITE_SEED" envDefault:"0"`
}

type APIConfig struct {
	BaseURL   string        `env:"API_BASE_URL"`
	UserAgent string        `env:"API_USER_AGENT" envDefault:"record-pager/1.0"`
	Timeout   time.Duration `env:"API_TIMEOUT" envDefault:"30s"`
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	// json or console
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads a .env file if present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every inconsistent setting.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Pager.PageSizes) == 0 {
		errs = append(errs, errors.New("PAGER_PAGE_SIZES must not be empty"))
	}
	for _, size := range c.Pager.PageSizes {
		if size < 1 {
			errs = append(errs, fmt.Errorf("page size %d must be positive", size))
		}
	}
	if !slices.Contains(c.Pager.PageSizes, c.Pager.DefaultPageSize) {
		errs = append(errs, fmt.Errorf("PAGER_DEFAULT_PAGE_SIZE %d is not one of %v", c.Pager.DefaultPageSize, c.Pager.PageSizes))
	}
	if c.Pager.PrefetchAhead < 0 {
		errs = append(errs, errors.New("PAGER_PREFETCH_AHEAD must not be negative"))
	}
	if c.Pager.PrefetchWorkers < 1 {
		errs = append(errs, errors.New("PAGER_PREFETCH_WORKERS must be at least 1"))
	}

	switch c.Source {
	case SourceSQLite, SourcePostgres:
	case SourceRemote:
		if c.API.BaseURL == "" {
			errs = append(errs, errors.New("API_BASE_URL is required for the remote source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PAGER_SOURCE %q", c.Source))
	}

	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
