// Package client reads record pages from a remote record API.
//
// The API serves GET {base}/{collection}?page=N&page_size=M with a JSON array
// body and the collection's total in the X-Total-Count header. Server, rate
// limit and network errors are retried with exponential backoff; client errors
// are not.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/record-pager/pkg/logging"
)

// TotalCountHeader carries the collection's record count.
const TotalCountHeader = "X-Total-Count"

// Client is an HTTP client for the record API.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the record API, e.g. "https://records.example.com/api".
	BaseURL string

	// User-Agent header sent with every request.
	UserAgent string

	// Timeout for a single HTTP attempt.
	Timeout time.Duration

	// Retry picks the retry configuration per error class.
	// Nil uses RetryConfigForErrorClass.
	Retry RetryPolicy

	// Gate, if set, is consulted before every attempt and told the quota
	// headers of every response.
	Gate RequestGate
}

// RequestGate shares the API's request quota between clients.
// ratelimit.Tracker implements it.
type RequestGate interface {
	ShouldAllowRequest(ctx context.Context) (bool, error)
	UpdateFromHeaders(ctx context.Context, headers http.Header) error
}

// DefaultConfig returns a default configuration for baseURL.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
		Retry:     RetryConfigForErrorClass,
	}
}

// New creates a new record API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http or https (got %q)", base.Scheme)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = RetryConfigForErrorClass
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    base,
		config:     cfg,
		logger:     logging.NewLogger("record-client"),
	}, nil
}

// Do performs req with retries. A response with a status below 400 is returned
// to the caller, who must close its body. Every other outcome is an error.
func (c *Client) Do(req *http.Request, collection string) (*http.Response, error) {
	ctx := req.Context()

	startTime := time.Now()
	defer func() {
		apiRequestDuration.WithLabelValues(collection).Observe(time.Since(startTime).Seconds())
	}()

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("collection", collection).
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Msg("Executing record API request")

	var resp *http.Response
	logger := c.logger.With().Str("collection", collection).Logger()
	err := retryWithBackoff(ctx, logger, c.config.Retry, func() (ErrorClass, error) {
		if class, err := c.admit(ctx, collection); err != nil {
			return class, err
		}

		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		if reqErr != nil {
			apiRequestsTotal.WithLabelValues(collection, "network_error").Inc()
			// The caller gave up; retrying cannot help.
			if ctx.Err() != nil && isTimeout(reqErr) {
				return "", reqErr
			}
			apiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			c.logger.Warn().Err(reqErr).Str("collection", collection).Msg("HTTP request failed")
			return ErrorClassNetwork, &APIError{ErrorClass: ErrorClassNetwork, Message: "request failed", Err: reqErr}
		}

		apiRequestsTotal.WithLabelValues(collection, strconv.Itoa(resp.StatusCode)).Inc()
		if c.config.Gate != nil {
			if err := c.config.Gate.UpdateFromHeaders(ctx, resp.Header); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to record rate limit headers")
			}
		}
		if resp.StatusCode < 400 {
			return "", nil
		}

		errClass := classifyStatus(resp.StatusCode)
		apiErrorsTotal.WithLabelValues(string(errClass)).Inc()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()

		c.logger.Warn().
			Str("collection", collection).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Record API request error")

		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = resp.Status
		}
		return errClass, &APIError{StatusCode: resp.StatusCode, ErrorClass: errClass, Message: msg}
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// admit asks the gate for permission to send a request. Gate failures let the request through.
func (c *Client) admit(ctx context.Context, collection string) (ErrorClass, error) {
	if c.config.Gate == nil {
		return "", nil
	}
	allowed, err := c.config.Gate.ShouldAllowRequest(ctx)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		c.logger.Warn().Err(err).Msg("Rate limit check failed, sending request anyway")
		return "", nil
	}
	if !allowed {
		apiErrorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
		c.logger.Warn().Str("collection", collection).Msg("Request blocked by shared rate limit")
		return ErrorClassRateLimit, &APIError{ErrorClass: ErrorClassRateLimit, Message: "request quota exhausted", Err: ErrRateLimited}
	}
	return "", nil
}

// Get performs a GET request for collection with the given query.
func (c *Client) Get(ctx context.Context, collection string, query url.Values) (*http.Response, error) {
	return c.request(ctx, http.MethodGet, collection, query)
}

// Head performs a HEAD request for collection.
func (c *Client) Head(ctx context.Context, collection string) (*http.Response, error) {
	return c.request(ctx, http.MethodHead, collection, nil)
}

func (c *Client) request(ctx context.Context, method, collection string, query url.Values) (*http.Response, error) {
	u := c.baseURL.JoinPath(collection)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.Do(req, collection)
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// parseTotal reads the X-Total-Count header.
func parseTotal(h http.Header) (int, error) {
	v := h.Get(TotalCountHeader)
	if v == "" {
		return 0, ErrMissingTotal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrMissingTotal, v)
	}
	return n, nil
}
