package entity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/collection-loader/pkg/collection"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for entity resolution.
var (
	cmsEntityFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cms_entity_fetches_total",
		Help: "Total entity fetches by outcome",
	}, []string{"outcome"})

	cmsEntityCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cms_entity_cache_hits_total",
		Help: "Total entity references skipped because they were already resolved",
	})
)

// Config holds resolver configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel entity fetches.
	MaxConcurrency int

	// Logger receives resolution diagnostics. Defaults to the global logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns the default resolver configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 8,
	}
}

// Report summarizes one Resolve call.
type Report struct {
	// Requested is the number of ids that needed a network fetch.
	Requested int
	Resolved  int
	Failed    []string
}

type fetchResult struct {
	id     string
	entity collection.Entity
	err    error
}

// Resolver fetches unresolved entity references into a Cache.
type Resolver struct {
	fetcher collection.EntityFetcher
	cache   *Cache
	config  Config
	logger  zerolog.Logger
}

// NewResolver creates a resolver writing into cache.
func NewResolver(fetcher collection.EntityFetcher, cache *Cache, config Config) *Resolver {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 8
	}
	if cache == nil {
		cache = NewCache()
	}

	logger := log.With().Str("component", "entity-resolver").Logger()
	if config.Logger != nil {
		logger = config.Logger.With().Str("component", "entity-resolver").Logger()
	}

	return &Resolver{
		fetcher: fetcher,
		cache:   cache,
		config:  config,
		logger:  logger,
	}
}

// Cache returns the cache the resolver writes into.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// Resolve fetches every id not already in the cache, in parallel, and returns
// once all fetches have settled. Failed ids stay unresolved.
func (r *Resolver) Resolve(ctx context.Context, ids []string) Report {
	missing := r.cache.Missing(ids)
	if skipped := countDistinct(ids) - len(missing); skipped > 0 {
		cmsEntityCacheHitsTotal.Add(float64(skipped))
	}

	report := Report{Requested: len(missing)}
	if len(missing) == 0 {
		return report
	}

	start := time.Now()

	queue := make(chan string, len(missing))
	for _, id := range missing {
		queue <- id
	}
	close(queue)

	results := make(chan fetchResult, len(missing))

	workers := r.config.MaxConcurrency
	if workers > len(missing) {
		workers = len(missing)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go r.worker(ctx, queue, results, &wg)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		if res.err != nil {
			cmsEntityFetchesTotal.WithLabelValues("failure").Inc()
			r.logger.Warn().
				Err(res.err).
				Str("entity_id", res.id).
				Msg("Entity fetch failed, leaving unresolved")
			report.Failed = append(report.Failed, res.id)
			continue
		}

		cmsEntityFetchesTotal.WithLabelValues("success").Inc()
		r.cache.put(res.id, res.entity)
		report.Resolved++
	}

	r.logger.Debug().
		Int("requested", report.Requested).
		Int("resolved", report.Resolved).
		Int("failed", len(report.Failed)).
		Dur("duration", time.Since(start)).
		Msg("Entity resolution complete")

	return report
}

// worker fetches ids from the queue until it is drained.
func (r *Resolver) worker(ctx context.Context, queue <-chan string, results chan<- fetchResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for id := range queue {
		entity, err := r.fetch(ctx, id)
		results <- fetchResult{id: id, entity: entity, err: err}
	}
}

// fetch shields the pipeline from a panicking fetcher.
func (r *Resolver) fetch(ctx context.Context, id string) (entity collection.Entity, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("entity fetcher panicked: %v", p)
		}
	}()
	return r.fetcher.FetchEntity(ctx, id)
}

func countDistinct(ids []string) int {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}
