// Package client is the HTTP client for the CMS proxy. It implements
// collection.Source over the paged list endpoint and collection.EntityFetcher
// over the single-item endpoint, with response caching, conditional
// revalidation and rate limit gating.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/collection-loader/pkg/cache"
	"github.com/Sternrassler/collection-loader/pkg/collection"
	"github.com/Sternrassler/collection-loader/pkg/ratelimit"
	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for CMS client operations.
var (
	cmsRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cms_requests_total",
		Help: "Total CMS requests by collection and status",
	}, []string{"collection", "status"})

	cmsRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cms_request_duration_seconds",
		Help:    "CMS request duration in seconds by collection",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"collection"})

	cmsErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cms_errors_total",
		Help: "Total CMS errors by class",
	}, []string{"class"})

	cmsItemsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cms_items_dropped_total",
		Help: "Total draft or archived items dropped from list pages",
	})
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is the CMS proxy root, e.g. "https://cms.example.com/api".
	BaseURL string

	// Collection is the primary collection paged by ListItems.
	Collection string

	// EntityCollection holds the entities referenced by primary items.
	EntityCollection string

	UserAgent string
	Timeout   time.Duration

	// NameField and ImageField locate an entity's display name and image.
	NameField  string
	ImageField string

	// Redis backs the shared cache layer and rate limit state. Optional.
	Redis *redis.Client

	Cache     cache.Config
	RateLimit ratelimit.Config

	Logger *zerolog.Logger
}

// DefaultConfig returns a default configuration for baseURL.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:    baseURL,
		UserAgent:  userAgent,
		Timeout:    30 * time.Second,
		NameField:  "name",
		ImageField: "logo",
		Cache:      cache.DefaultConfig(),
		RateLimit:  ratelimit.DefaultConfig(),
	}
}

// Client talks to the CMS proxy.
type Client struct {
	http        *resty.Client
	cache       *cache.Manager
	rateLimiter *ratelimit.Tracker
	pages       *offsetMap
	config      Config
	logger      zerolog.Logger
}

// New creates a new CMS client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.NameField == "" {
		cfg.NameField = "name"
	}
	if cfg.ImageField == "" {
		cfg.ImageField = "logo"
	}

	logger := log.With().Str("component", "cms-client").Logger()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "cms-client").Logger()
	}
	if cfg.Cache.Logger == nil {
		cfg.Cache.Logger = &logger
	}
	if cfg.RateLimit.Logger == nil {
		cfg.RateLimit.Logger = &logger
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json")

	return &Client{
		http:        httpClient,
		cache:       cache.NewManager(cfg.Redis, cfg.Cache),
		rateLimiter: ratelimit.NewTracker(cfg.Redis, cfg.RateLimit),
		pages:       newOffsetMap(),
		config:      cfg,
		logger:      logger,
	}, nil
}

// Response is a proxy response, possibly served from cache.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// Cached is true when no network round trip returned the body.
	Cached bool
}

// Fetch performs a cached GET of path below collectionID. Non-2xx responses
// are returned as *CMSError.
func (c *Client) Fetch(ctx context.Context, collectionID, path string, query url.Values) (*Response, error) {
	start := time.Now()
	defer func() {
		cmsRequestDuration.WithLabelValues(collectionID).Observe(time.Since(start).Seconds())
	}()

	key := cache.CacheKey{Collection: collectionID, Path: path, QueryParams: query}

	cached, err := c.cache.GetStale(ctx, key)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get error")
	}
	if cached != nil && !cached.IsExpired() {
		cmsRequestsTotal.WithLabelValues(collectionID, "cache_hit").Inc()
		return entryResponse(cached), nil
	}

	allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
	if err != nil {
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		cmsRequestsTotal.WithLabelValues(collectionID, "rate_limited").Inc()
		cmsErrorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
		return nil, &CMSError{
			StatusCode: http.StatusTooManyRequests,
			Class:      ErrorClassRateLimit,
			Message:    "request held until the rate limit window resets",
			Err:        ErrRateLimited,
		}
	}

	req := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(query)
	if cached != nil && cache.ShouldMakeConditionalRequest(cached) {
		req.SetHeaders(cache.ConditionalHeaders(cached))
		c.logger.Debug().
			Str("key", key.String()).
			Str("etag", cached.ETag).
			Msg("Making conditional request")
	}

	endpoint := collectionPath(collectionID, path)
	resp, err := req.Get(endpoint)
	if err != nil {
		cmsErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		cmsRequestsTotal.WithLabelValues(collectionID, "network_error").Inc()
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("CMS request failed")
		return nil, &CMSError{
			Class:   ErrorClassNetwork,
			Message: "GET " + endpoint,
			Err:     err,
		}
	}

	status := resp.StatusCode()
	cmsRequestsTotal.WithLabelValues(collectionID, strconv.Itoa(status)).Inc()

	if err := c.rateLimiter.UpdateFromHeaders(ctx, status, resp.Header()); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
	}

	if cache.IsNotModified(status) && cached != nil {
		cache.Refresh(cached, resp.Header())
		if err := c.cache.Set(ctx, key, cached); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to refresh cache entry")
		}
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")
		return entryResponse(cached), nil
	}

	if status >= 300 {
		cmsErr := statusError(status, resp.Status())
		cmsErrorsTotal.WithLabelValues(string(cmsErr.Class)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", status).
			Str("error_class", string(cmsErr.Class)).
			Msg("CMS request error")
		return nil, cmsErr
	}

	entry := cache.NewEntry(status, resp.Header(), resp.Body())
	if err := c.cache.Set(ctx, key, entry); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to cache response")
	}

	return &Response{
		StatusCode: status,
		Header:     resp.Header().Clone(),
		Body:       resp.Body(),
	}, nil
}

// listResponse is the list endpoint's body.
type listResponse struct {
	Items      []itemPayload `json:"items"`
	Pagination *struct {
		Total *int `json:"total"`
	} `json:"pagination"`
}

type itemPayload struct {
	ID         string         `json:"id"`
	IsDraft    bool           `json:"isDraft"`
	IsArchived bool           `json:"isArchived"`
	FieldData  map[string]any `json:"fieldData"`
}

// ListItems implements collection.Source for the primary collection.
//
// Draft and archived items are dropped. Offsets are counted in published
// items: the client remembers where each page ended upstream and keeps
// reading until the page holds limit items or the collection ends, so a
// short page always means exhaustion. The reported total is reduced by the
// items dropped so far, which makes it an upper bound until the last page.
func (c *Client) ListItems(ctx context.Context, offset, limit int) (collection.Page, error) {
	mark := c.pages.at(offset)

	page := collection.Page{Items: make([]collection.Item, 0, limit)}
	var total *int
	dropped := 0
	for len(page.Items) < limit {
		body, err := c.listRaw(ctx, mark.raw, limit)
		if err != nil {
			return collection.Page{}, err
		}
		if body.Pagination != nil && body.Pagination.Total != nil {
			total = body.Pagination.Total
		}

		for _, it := range body.Items {
			if len(page.Items) == limit {
				break
			}
			mark.raw++
			if it.IsDraft || it.IsArchived {
				mark.dropped++
				dropped++
				continue
			}
			page.Items = append(page.Items, collection.Item{ID: it.ID, Fields: it.FieldData})
		}

		if len(body.Items) < limit {
			break
		}
	}

	end := offset + len(page.Items)
	c.pages.set(end, mark)
	if total != nil {
		t := max(*total-mark.dropped, end)
		page.Total = &t
	}

	if dropped > 0 {
		cmsItemsDroppedTotal.Add(float64(dropped))
		c.logger.Debug().
			Int("offset", offset).
			Int("dropped", dropped).
			Msg("Dropped unpublished items from page")
	}

	return page, nil
}

func (c *Client) listRaw(ctx context.Context, offset, limit int) (*listResponse, error) {
	query := url.Values{
		"offset": []string{strconv.Itoa(offset)},
		"limit":  []string{strconv.Itoa(limit)},
	}

	resp, err := c.Fetch(ctx, c.config.Collection, "/items", query)
	if err != nil {
		return nil, err
	}

	var body listResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrDecode, c.config.Collection, err)
	}
	return &body, nil
}

// FetchEntity implements collection.EntityFetcher for the entity collection.
func (c *Client) FetchEntity(ctx context.Context, id string) (collection.Entity, error) {
	resp, err := c.Fetch(ctx, c.config.EntityCollection, "/items/"+url.PathEscape(id), nil)
	if err != nil {
		return collection.Entity{}, err
	}

	var body itemPayload
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return collection.Entity{}, fmt.Errorf("%w: entity %s: %v", ErrDecode, id, err)
	}

	item := collection.Item{ID: body.ID, Fields: body.FieldData}
	if item.ID == "" {
		item.ID = id
	}
	name, _ := item.String(c.config.NameField)

	return collection.Entity{
		ID:       item.ID,
		Name:     name,
		ImageURL: imageURL(item.Fields[c.config.ImageField]),
	}, nil
}

// Ping checks the proxy answers for the primary collection.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ListItems(ctx, 0, 1)
	return err
}

// Cache returns the response cache.
func (c *Client) Cache() *cache.Manager {
	return c.cache
}

// RateLimiter returns the rate limit tracker.
func (c *Client) RateLimiter() *ratelimit.Tracker {
	return c.rateLimiter
}

// imageURL accepts a plain URL or an image object with a url field.
func imageURL(v any) string {
	switch img := v.(type) {
	case string:
		return img
	case map[string]any:
		if u, ok := img["url"].(string); ok {
			return u
		}
	}
	return ""
}

func collectionPath(collectionID, path string) string {
	return "/collections/" + url.PathEscape(collectionID) + path
}

func entryResponse(entry *cache.CacheEntry) *Response {
	return &Response{
		StatusCode: entry.StatusCode,
		Header:     entry.Headers.Clone(),
		Body:       entry.Data,
		Cached:     true,
	}
}
