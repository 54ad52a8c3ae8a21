// Package ratelimit shares the record API's request quota between client
// instances. It reads the X-RateLimit-Remaining and X-RateLimit-Reset headers
// of every response, keeps the latest state in Redis and gates requests when
// the quota runs low.
package ratelimit

import (
	"time"
)

// Response headers carrying the quota.
const (
	HeaderRemaining = "X-RateLimit-Remaining"
	// Seconds until the quota window resets.
	HeaderReset = "X-RateLimit-Reset"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRemaining  = "pager:rate_limit:remaining"
	RedisKeyResetAt    = "pager:rate_limit:reset_at"
	RedisKeyLastUpdate = "pager:rate_limit:last_update"
)

// Thresholds for rate limit decisions.
const (
	// ThresholdCritical blocks requests while fewer requests remain.
	ThresholdCritical = 5

	// ThresholdWarning throttles requests while fewer requests remain.
	ThresholdWarning = 20

	// ThresholdHealthy marks the quota healthy at or above this value.
	ThresholdHealthy = 50
)

// State is the last known request quota of the record API.
type State struct {
	// Remaining requests in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when a response last reported the quota.
	LastUpdate time.Time `json:"last_update"`

	IsHealthy bool `json:"is_healthy"`
}

// DefaultState is assumed until a response reports the quota.
func DefaultState() *State {
	now := time.Now()
	return &State{
		Remaining:  100,
		ResetAt:    now.Add(60 * time.Second),
		LastUpdate: now,
		IsHealthy:  true,
	}
}

// IsStale returns true if the state is older than maxAge.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsBlock returns true while requests must not be sent.
// A window that has already reset never blocks.
func (s *State) NeedsBlock() bool {
	return s.Remaining < ThresholdCritical && s.TimeUntilReset() > 0
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *State) NeedsThrottling() bool {
	return s.Remaining < ThresholdWarning && s.TimeUntilReset() > 0 && !s.NeedsBlock()
}

// TimeUntilReset returns the duration until the window resets, or 0 if it already has.
func (s *State) TimeUntilReset() time.Duration {
	return max(time.Until(s.ResetAt), 0)
}

// UpdateHealth updates IsHealthy from Remaining.
func (s *State) UpdateHealth() {
	s.IsHealthy = s.Remaining >= ThresholdHealthy
}
