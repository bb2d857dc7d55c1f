//go:build integration

package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		redisContainer.Terminate(ctx)
	})

	return client
}

func newRedisTracker(client *redis.Client) *Tracker {
	logger := zerolog.Nop()
	cfg := DefaultConfig()
	cfg.ThrottleDelay = 50 * time.Millisecond
	cfg.Logger = &logger
	return NewTracker(client, cfg)
}

func TestTracker_Integration_SharedState(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	writer := newRedisTracker(client)
	reader := newRedisTracker(client)

	state, err := reader.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.IsHealthy {
		t.Error("Expected healthy default state")
	}

	headers := http.Header{}
	headers.Set("X-RateLimit-Remaining", "1")
	headers.Set("X-RateLimit-Limit", "60")
	headers.Set("Retry-After", "120")
	if err := writer.UpdateFromHeaders(ctx, http.StatusOK, headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	state, err = reader.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Remaining != 1 || state.Limit != 60 {
		t.Errorf("State = %+v, want remaining 1 limit 60", state)
	}
	if d := state.TimeUntilReset(); d < 115*time.Second || d > 121*time.Second {
		t.Errorf("TimeUntilReset = %v, want about 120s", d)
	}

	allowed, err := reader.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if allowed {
		t.Error("Expected requests to be blocked across trackers")
	}
}

func TestTracker_Integration_WindowReset(t *testing.T) {
	client := setupRedis(t)
	tracker := newRedisTracker(client)
	ctx := context.Background()

	if err := tracker.UpdateFromHeaders(ctx, http.StatusTooManyRequests, http.Header{"Retry-After": []string{"1"}}); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	allowed, err := tracker.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if allowed {
		t.Fatal("Expected block right after 429")
	}

	time.Sleep(1500 * time.Millisecond)

	allowed, err = tracker.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if !allowed {
		t.Error("Expected requests to resume after the window")
	}
}
