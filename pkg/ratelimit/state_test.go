package ratelimit

import (
	"testing"
	"time"
)

func TestRateLimitState_IsStale(t *testing.T) {
	tests := []struct {
		name     string
		state    *RateLimitState
		maxAge   time.Duration
		expected bool
	}{
		{
			name:     "fresh state",
			state:    &RateLimitState{LastUpdate: time.Now()},
			maxAge:   5 * time.Minute,
			expected: false,
		},
		{
			name:     "stale state",
			state:    &RateLimitState{LastUpdate: time.Now().Add(-10 * time.Minute)},
			maxAge:   5 * time.Minute,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsStale(tt.maxAge); got != tt.expected {
				t.Errorf("IsStale() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRateLimitState_Decisions(t *testing.T) {
	future := time.Now().Add(time.Minute)
	past := time.Now().Add(-time.Second)

	tests := []struct {
		name           string
		remaining      int
		resetAt        time.Time
		expectBlock    bool
		expectThrottle bool
		expectHealthy  bool
	}{
		{
			name:          "plenty remaining",
			remaining:     50,
			resetAt:       future,
			expectHealthy: true,
		},
		{
			name:          "at warning threshold",
			remaining:     ThresholdWarning,
			resetAt:       future,
			expectHealthy: true,
		},
		{
			name:           "below warning",
			remaining:      ThresholdWarning - 1,
			resetAt:        future,
			expectThrottle: true,
		},
		{
			name:           "at critical threshold",
			remaining:      ThresholdCritical,
			resetAt:        future,
			expectThrottle: true,
		},
		{
			name:        "below critical",
			remaining:   0,
			resetAt:     future,
			expectBlock: true,
		},
		{
			name:          "exhausted but window elapsed",
			remaining:     0,
			resetAt:       past,
			expectHealthy: true,
		},
		{
			name:          "low but window elapsed",
			remaining:     ThresholdWarning - 1,
			resetAt:       past,
			expectHealthy: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &RateLimitState{
				Remaining:  tt.remaining,
				ResetAt:    tt.resetAt,
				LastUpdate: time.Now(),
			}
			state.UpdateHealth()

			if got := state.NeedsCriticalBlock(); got != tt.expectBlock {
				t.Errorf("NeedsCriticalBlock() = %v, want %v", got, tt.expectBlock)
			}
			if got := state.NeedsThrottling(); got != tt.expectThrottle {
				t.Errorf("NeedsThrottling() = %v, want %v", got, tt.expectThrottle)
			}
			if state.IsHealthy != tt.expectHealthy {
				t.Errorf("IsHealthy = %v, want %v", state.IsHealthy, tt.expectHealthy)
			}
		})
	}
}

func TestRateLimitState_TimeUntilReset(t *testing.T) {
	tests := []struct {
		name    string
		resetAt time.Time
		wantMin time.Duration
		wantMax time.Duration
	}{
		{
			name:    "reset in 30 seconds",
			resetAt: time.Now().Add(30 * time.Second),
			wantMin: 29 * time.Second,
			wantMax: 31 * time.Second,
		},
		{
			name:    "reset already passed",
			resetAt: time.Now().Add(-10 * time.Second),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &RateLimitState{ResetAt: tt.resetAt}
			got := state.TimeUntilReset()
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("TimeUntilReset() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestRateLimitState_ZeroResetNotElapsed(t *testing.T) {
	state := &RateLimitState{Remaining: 0}
	if state.WindowElapsed() {
		t.Error("Zero reset time must not count as elapsed")
	}
	if !state.NeedsCriticalBlock() {
		t.Error("Exhausted state without reset time should block")
	}
}

func TestThresholdConstants(t *testing.T) {
	if ThresholdCritical >= ThresholdWarning {
		t.Errorf("ThresholdCritical (%d) must be below ThresholdWarning (%d)", ThresholdCritical, ThresholdWarning)
	}
	if !healthyState().IsHealthy {
		t.Error("Default state must be healthy")
	}
}
