package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for rate limit tracking.
var (
	cmsRateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cms_rate_limit_remaining",
		Help: "Requests remaining in the current CMS rate limit window",
	})

	cmsRateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cms_rate_limit_blocks_total",
		Help: "Total number of requests blocked until the rate limit window resets",
	})

	cmsRateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cms_rate_limit_throttles_total",
		Help: "Total number of requests delayed because the quota is low",
	})
)

// Config holds tracker configuration.
type Config struct {
	// KeyPrefix namespaces the Redis keys.
	KeyPrefix string

	// ThrottleDelay is how long a request waits when the quota is low.
	ThrottleDelay time.Duration

	Logger *zerolog.Logger
}

// DefaultConfig returns the default tracker configuration.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:     DefaultKeyPrefix,
		ThrottleDelay: 500 * time.Millisecond,
	}
}

// Tracker monitors the CMS request quota and gates requests. Without a
// Redis client the state is kept in process.
type Tracker struct {
	redis  *redis.Client
	key    string
	delay  time.Duration
	logger zerolog.Logger

	mu    sync.Mutex
	local *RateLimitState
}

// NewTracker creates a new rate limit tracker.
func NewTracker(redisClient *redis.Client, cfg Config) *Tracker {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.ThrottleDelay < 0 {
		cfg.ThrottleDelay = 0
	}

	logger := log.With().Str("component", "ratelimit").Logger()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "ratelimit").Logger()
	}

	return &Tracker{
		redis:  redisClient,
		key:    cfg.KeyPrefix + ":state",
		delay:  cfg.ThrottleDelay,
		logger: logger,
	}
}

// GetState returns the last recorded state, or a healthy default when
// nothing has been recorded.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.local == nil {
			return healthyState(), nil
		}
		state := *t.local
		state.UpdateHealth()
		return &state, nil
	}

	fields, err := t.redis.HGetAll(ctx, t.key).Result()
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}
	if len(fields) == 0 {
		t.logger.Debug().Msg("No rate limit state in Redis, assuming healthy")
		return healthyState(), nil
	}

	state, err := decodeState(fields)
	if err != nil {
		return nil, err
	}
	state.UpdateHealth()
	return state, nil
}

// UpdateFromHeaders records the quota reported by a response. Responses
// without rate limit headers leave the state untouched, except 429 which
// always exhausts the window.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, status int, headers http.Header) error {
	now := time.Now()
	state := &RateLimitState{LastUpdate: now}

	window, err := parseRetryAfter(headers.Get("Retry-After"), now)
	if err != nil {
		return err
	}

	if status == http.StatusTooManyRequests {
		state.Remaining = 0
	} else {
		remainStr := headers.Get("X-RateLimit-Remaining")
		if remainStr == "" {
			return nil
		}
		remain, err := strconv.Atoi(remainStr)
		if err != nil {
			return fmt.Errorf("parse X-RateLimit-Remaining header: %w", err)
		}
		state.Remaining = remain
	}

	if limitStr := headers.Get("X-RateLimit-Limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return fmt.Errorf("parse X-RateLimit-Limit header: %w", err)
		}
		state.Limit = limit
	}

	state.ResetAt = now.Add(window)
	state.UpdateHealth()

	if err := t.store(ctx, state); err != nil {
		return err
	}

	cmsRateLimitRemaining.Set(float64(state.Remaining))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("CMS rate limit CRITICAL - requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("CMS rate limit low - requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Int("limit", state.Limit).
			Msg("CMS rate limit state updated")
	}

	return nil
}

// ShouldAllowRequest reports whether a request may be sent now. A low quota
// delays the caller by the throttle delay; ctx cancellation ends the wait
// with ctx's error.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get rate limit state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("CMS rate limit critical - blocking request")

		cmsRateLimitBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() && t.delay > 0 {
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Dur("delay", t.delay).
			Msg("CMS rate limit low - throttling request")

		cmsRateLimitThrottlesTotal.Inc()

		timer := time.NewTimer(t.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	return true, nil
}

func (t *Tracker) store(ctx context.Context, state *RateLimitState) error {
	if t.redis == nil {
		t.mu.Lock()
		copied := *state
		t.local = &copied
		t.mu.Unlock()
		return nil
	}

	pipe := t.redis.TxPipeline()
	pipe.HSet(ctx, t.key, map[string]any{
		"remaining":   state.Remaining,
		"limit":       state.Limit,
		"reset_at":    state.ResetAt.UnixMilli(),
		"last_update": state.LastUpdate.UnixMilli(),
	})
	pipe.ExpireAt(ctx, t.key, state.ResetAt.Add(time.Minute))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}

func decodeState(fields map[string]string) (*RateLimitState, error) {
	ints := make(map[string]int64, len(fields))
	for _, name := range []string{"remaining", "limit", "reset_at", "last_update"} {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse rate limit field %s: %w", name, err)
		}
		ints[name] = v
	}
	return &RateLimitState{
		Remaining:  int(ints["remaining"]),
		Limit:      int(ints["limit"]),
		ResetAt:    time.UnixMilli(ints["reset_at"]),
		LastUpdate: time.UnixMilli(ints["last_update"]),
	}, nil
}

var errInvalidRetryAfter = errors.New("invalid Retry-After header")

// parseRetryAfter accepts delay-seconds or an HTTP date. An absent header
// yields DefaultWindow.
func parseRetryAfter(value string, now time.Time) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultWindow, nil
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, fmt.Errorf("%w: %q", errInvalidRetryAfter, value)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	at, err := http.ParseTime(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errInvalidRetryAfter, value)
	}
	if d := at.Sub(now); d > 0 {
		return d, nil
	}
	return 0, nil
}
