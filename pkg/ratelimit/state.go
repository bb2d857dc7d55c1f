// Package ratelimit tracks the CMS proxy's request quota and gates outgoing
// requests. It reads the X-RateLimit-Remaining, X-RateLimit-Limit and
// Retry-After headers and shares the resulting state through Redis so every
// client instance backs off together.
package ratelimit

import (
	"time"
)

// DefaultKeyPrefix prefixes the Redis keys holding the shared state.
const DefaultKeyPrefix = "cms:rate_limit"

// Thresholds for rate limit decisions, in requests remaining.
const (
	// ThresholdCritical blocks requests below this value until the window
	// resets.
	ThresholdCritical = 2

	// ThresholdWarning throttles requests below this value.
	ThresholdWarning = 10
)

// DefaultWindow is assumed when the proxy sends no Retry-After.
const DefaultWindow = 60 * time.Second

// RateLimitState is the last known quota.
type RateLimitState struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// Limit is the window's quota, 0 when unknown.
	Limit int `json:"limit"`

	// ResetAt is when the window is expected to refill.
	ResetAt time.Time `json:"reset_at"`

	LastUpdate time.Time `json:"last_update"`

	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state data is older than maxAge.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// WindowElapsed reports whether the window has refilled since the state
// was recorded.
func (s *RateLimitState) WindowElapsed() bool {
	return !s.ResetAt.IsZero() && !time.Now().Before(s.ResetAt)
}

// NeedsCriticalBlock returns true if requests must wait for the window.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	return s.Remaining < ThresholdCritical && !s.WindowElapsed()
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *RateLimitState) NeedsThrottling() bool {
	return s.Remaining < ThresholdWarning && !s.WindowElapsed() && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the window refills.
// Returns 0 if the reset time has already passed.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth recomputes IsHealthy.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = !s.NeedsCriticalBlock() && !s.NeedsThrottling()
}

func healthyState() *RateLimitState {
	now := time.Now()
	return &RateLimitState{
		Remaining:  ThresholdWarning * 10,
		ResetAt:    now,
		LastUpdate: now,
		IsHealthy:  true,
	}
}
