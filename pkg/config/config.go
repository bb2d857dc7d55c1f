// Package config loads the collection browser configuration: built-in
// defaults, an optional JSON5 file with a local override file, then
// environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"dario.cat/mergo"
	"github.com/Sternrassler/collection-loader/pkg/client"
	"github.com/Sternrassler/collection-loader/pkg/filter"
	"github.com/Sternrassler/collection-loader/pkg/loader"
	"github.com/Sternrassler/collection-loader/pkg/logging"
	"github.com/redis/go-redis/v9"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Environment variables applied by ApplyEnv.
const (
	EnvBaseURL   = "CMS_BASE_URL"
	EnvRedisURL  = "REDIS_URL"
	EnvPort      = "PORT"
	EnvUserAgent = "USER_AGENT"
)

// Config is the complete browser configuration.
type Config struct {
	BaseURL          string `json:"base_url"`
	UserAgent        string `json:"user_agent"`
	Collection       string `json:"collection"`
	EntityCollection string `json:"entity_collection"`
	NameField        string `json:"name_field"`
	ImageField       string `json:"image_field"`
	TimeoutSeconds   int    `json:"timeout_seconds"`

	PageSize             int           `json:"page_size"`
	BatchSize            int           `json:"batch_size"`
	MaxEntityConcurrency int           `json:"max_entity_concurrency"`
	Schema               filter.Schema `json:"schema"`

	// RedisURL is a redis:// URL or a bare host:port. Empty disables the
	// shared cache layer.
	RedisURL string `json:"redis_url"`

	Port string `json:"port"`

	Log logging.Config `json:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	lc := loader.DefaultConfig()
	return Config{
		UserAgent:            "collection-loader/0.1.0",
		Collection:           "videos",
		EntityCollection:     "sponsors",
		NameField:            "name",
		ImageField:           "logo",
		TimeoutSeconds:       30,
		PageSize:             lc.PageSize,
		BatchSize:            lc.BatchSize,
		MaxEntityConcurrency: lc.MaxEntityConcurrency,
		Port:                 "8080",
		Log:                  logging.DefaultConfig(),
	}
}

// Load builds the configuration from defaults, the file at path (skipped
// when path is empty) and the environment, then validates it.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()

	if path != "" {
		file, err := ReadConfig[Config](path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := mergo.Merge(&cfg, file, mergo.WithOverride); err != nil {
			return cfg, fmt.Errorf("merge config %s: %w", path, err)
		}
	}

	cfg = cfg.ApplyEnv(getenv)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overlays the environment variables that are set.
func (c Config) ApplyEnv(getenv func(string) string) Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	c.BaseURL = getEnv(getenv, EnvBaseURL, c.BaseURL)
	c.RedisURL = getEnv(getenv, EnvRedisURL, c.RedisURL)
	c.Port = getEnv(getenv, EnvPort, c.Port)
	c.UserAgent = getEnv(getenv, EnvUserAgent, c.UserAgent)
	c.Log = logging.FromEnv(c.Log, getenv)
	return c
}

// Validate checks the settings the loader and client cannot default.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base_url is required", ErrInvalidConfig)
	}
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return fmt.Errorf("%w: base_url: %v", ErrInvalidConfig, err)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("%w: user_agent is required", ErrInvalidConfig)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection is required", ErrInvalidConfig)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("%w: page_size must be positive, got %d", ErrInvalidConfig, c.PageSize)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	}
	if err := c.Schema.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ClientConfig returns the CMS client configuration. rdb may be nil.
func (c Config) ClientConfig(rdb *redis.Client) client.Config {
	cc := client.DefaultConfig(c.BaseURL, c.UserAgent)
	cc.Collection = c.Collection
	cc.EntityCollection = c.EntityCollection
	if c.NameField != "" {
		cc.NameField = c.NameField
	}
	if c.ImageField != "" {
		cc.ImageField = c.ImageField
	}
	if c.TimeoutSeconds > 0 {
		cc.Timeout = time.Duration(c.TimeoutSeconds) * time.Second
	}
	cc.Redis = rdb
	return cc
}

// LoaderConfig returns the loader configuration.
func (c Config) LoaderConfig() loader.Config {
	lc := loader.DefaultConfig()
	lc.PageSize = c.PageSize
	lc.BatchSize = c.BatchSize
	if c.MaxEntityConcurrency > 0 {
		lc.MaxEntityConcurrency = c.MaxEntityConcurrency
	}
	lc.Schema = c.Schema
	return lc
}

// RedisOptions parses RedisURL. A bare host:port is accepted. It returns
// nil when Redis is not configured.
func (c Config) RedisOptions() (*redis.Options, error) {
	if c.RedisURL == "" {
		return nil, nil
	}
	if u, err := url.Parse(c.RedisURL); err == nil && (u.Scheme == "redis" || u.Scheme == "rediss") {
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("%w: redis_url: %v", ErrInvalidConfig, err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: c.RedisURL}, nil
}

func getEnv(getenv func(string) string, key, defaultValue string) string {
	if value := getenv(key); value != "" {
		return value
	}
	return defaultValue
}
