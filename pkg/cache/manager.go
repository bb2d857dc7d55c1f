package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Config holds cache manager configuration.
type Config struct {
	// MemorySize is the number of entries kept in process.
	MemorySize int

	// MemoryTTL caps how long an entry stays in process regardless of its
	// own expiry.
	MemoryTTL time.Duration

	Logger *zerolog.Logger
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		MemorySize: 1024,
		MemoryTTL:  10 * time.Minute,
	}
}

// Manager handles caching operations over the memory and Redis layers.
type Manager struct {
	memory *expirable.LRU[string, *CacheEntry]
	redis  *redis.Client
	logger zerolog.Logger
}

// NewManager creates a cache manager. redisClient may be nil for a
// memory-only cache.
func NewManager(redisClient *redis.Client, cfg Config) *Manager {
	if cfg.MemorySize <= 0 {
		cfg.MemorySize = DefaultConfig().MemorySize
	}
	if cfg.MemoryTTL <= 0 {
		cfg.MemoryTTL = DefaultConfig().MemoryTTL
	}

	logger := log.With().Str("component", "cache").Logger()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "cache").Logger()
	}

	return &Manager{
		memory: expirable.NewLRU[string, *CacheEntry](cfg.MemorySize, nil, cfg.MemoryTTL),
		redis:  redisClient,
		logger: logger,
	}
}

// Get retrieves a cache entry by key, trying memory before Redis.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	entry, err := m.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}
	return entry, nil
}

// GetStale returns an entry even if expired, for revalidation with a
// conditional request. Memory is checked first.
func (m *Manager) GetStale(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	return m.lookup(ctx, key)
}

func (m *Manager) lookup(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	cacheKey := key.String()

	if entry, ok := m.memory.Get(cacheKey); ok {
		CacheHits.WithLabelValues("memory").Inc()
		copied := *entry
		return &copied, nil
	}

	if m.redis == nil {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	data, err := m.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	CacheHits.WithLabelValues("redis").Inc()
	copied := entry
	m.memory.Add(cacheKey, &copied)

	return &entry, nil
}

// Set stores a cache entry in both layers. Redis keeps it for the entry's
// TTL plus a grace window so it can still be revalidated once stale.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	cacheKey := key.String()
	copied := *entry
	m.memory.Add(cacheKey, &copied)
	CacheSize.WithLabelValues("memory").Add(float64(len(entry.Data)))

	if m.redis == nil {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, cacheKey, data, ttl+staleGrace).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		m.logger.Warn().Err(err).Str("key", cacheKey).Msg("Redis cache write failed")
		return fmt.Errorf("redis set: %w", err)
	}

	CacheSize.WithLabelValues("redis").Add(float64(len(data)))
	return nil
}

// staleGrace is how long Redis retains an entry past its expiry.
const staleGrace = time.Hour

// Delete removes a cache entry from both layers.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	cacheKey := key.String()
	m.memory.Remove(cacheKey)

	if m.redis == nil {
		return nil
	}
	if err := m.redis.Del(ctx, cacheKey).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// UpdateTTL updates the expiry of an existing entry, stale or not.
// Used after a 304 Not Modified response.
func (m *Manager) UpdateTTL(ctx context.Context, key CacheKey, newExpires time.Time) error {
	entry, err := m.GetStale(ctx, key)
	if err != nil {
		return err
	}

	entry.Expires = newExpires
	return m.Set(ctx, key, entry)
}

// Len returns the number of entries held in process.
func (m *Manager) Len() int {
	return m.memory.Len()
}
