package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	quotaRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pager_api_rate_limit_remaining",
		Help: "Requests remaining in the record API's current rate limit window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pager_api_rate_limit_blocks_total",
		Help: "Total number of requests blocked because the quota was exhausted",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pager_api_rate_limit_throttles_total",
		Help: "Total number of requests delayed because the quota ran low",
	})
)

// DefaultThrottle is the delay applied to requests while the quota is low.
const DefaultThrottle = time.Second

// Tracker keeps the shared quota state in Redis and gates requests on it.
type Tracker struct {
	redis    *redis.Client
	logger   zerolog.Logger
	throttle time.Duration
}

// NewTracker creates a tracker that delays throttled requests by DefaultThrottle.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:    redisClient,
		logger:   logger,
		throttle: DefaultThrottle,
	}
}

// WithThrottle returns a copy of t with a different throttle delay.
func (t *Tracker) WithThrottle(d time.Duration) *Tracker {
	c := *t
	c.throttle = d
	return &c
}

// GetState returns the stored state, or DefaultState if no response has reported one.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	vals, err := t.redis.MGet(ctx, RedisKeyRemaining, RedisKeyResetAt, RedisKeyLastUpdate).Result()
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}
	for _, v := range vals {
		if v == nil {
			t.logger.Debug().Msg("No rate limit state in Redis, assuming healthy")
			return DefaultState(), nil
		}
	}

	remaining, err1 := strconv.Atoi(vals[0].(string))
	resetAt, err2 := strconv.ParseInt(vals[1].(string), 10, 64)
	lastUpdate, err3 := time.Parse(time.RFC3339Nano, vals[2].(string))
	if err := errors.Join(err1, err2, err3); err != nil {
		return nil, fmt.Errorf("parse rate limit state: %w", err)
	}

	state := &State{
		Remaining:  remaining,
		ResetAt:    time.Unix(resetAt, 0),
		LastUpdate: lastUpdate,
	}
	state.UpdateHealth()
	return state, nil
}

// UpdateFromHeaders stores the quota reported by a response.
// Responses without the headers are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remaining, reset, ok, err := parseHeaders(headers)
	if err != nil || !ok {
		return err
	}

	now := time.Now()
	state := &State{
		Remaining:  remaining,
		ResetAt:    now.Add(reset),
		LastUpdate: now,
	}
	state.UpdateHealth()

	// The state expires with its window so a stale block cannot outlive it.
	ttl := reset + time.Second
	pipe := t.redis.TxPipeline()
	pipe.Set(ctx, RedisKeyRemaining, remaining, ttl)
	pipe.Set(ctx, RedisKeyResetAt, state.ResetAt.Unix(), ttl)
	pipe.Set(ctx, RedisKeyLastUpdate, now.Format(time.RFC3339Nano), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	quotaRemaining.Set(float64(remaining))

	switch {
	case state.NeedsBlock():
		t.logger.Error().
			Int("remaining", remaining).
			Time("reset_at", state.ResetAt).
			Msg("Record API quota exhausted - requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("remaining", remaining).
			Time("reset_at", state.ResetAt).
			Msg("Record API quota low - requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", remaining).
			Time("reset_at", state.ResetAt).
			Bool("is_healthy", state.IsHealthy).
			Msg("Record API quota updated")
	}

	return nil
}

// ShouldAllowRequest reports whether a request may be sent now.
// It returns false while the quota is exhausted and delays the caller while it is low.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, err
	}

	if state.NeedsBlock() {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Record API quota exhausted - blocking request")
		rateLimitBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Dur("delay", t.throttle).
			Msg("Record API quota low - throttling request")
		rateLimitThrottlesTotal.Inc()

		timer := time.NewTimer(t.throttle)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	return true, nil
}

// parseHeaders reads the quota headers. ok is false if the response has none.
func parseHeaders(h http.Header) (remaining int, reset time.Duration, ok bool, err error) {
	remainStr := h.Get(HeaderRemaining)
	if remainStr == "" {
		return 0, 0, false, nil
	}
	remaining, err = strconv.Atoi(remainStr)
	if err != nil || remaining < 0 {
		return 0, 0, false, fmt.Errorf("parse %s header %q: invalid count", HeaderRemaining, remainStr)
	}

	resetStr := h.Get(HeaderReset)
	if resetStr == "" {
		return 0, 0, false, fmt.Errorf("%s header missing", HeaderReset)
	}
	seconds, err := strconv.Atoi(resetStr)
	if err != nil || seconds < 0 {
		return 0, 0, false, fmt.Errorf("parse %s header %q: invalid seconds", HeaderReset, resetStr)
	}

	return remaining, time.Duration(seconds) * time.Second, true, nil
}
