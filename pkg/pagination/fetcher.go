package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/collection-loader/pkg/collection"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidRange is returned for a negative offset or a non-positive limit.
	ErrInvalidRange = errors.New("invalid page range")

	// ErrSourcePanic wraps a panic raised by the underlying source.
	ErrSourcePanic = errors.New("page source panicked")
)

// Prometheus metrics for page fetching.
var (
	cmsPagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cms_pages_fetched_total",
		Help: "Total page fetches by outcome",
	}, []string{"outcome"})

	cmsPageItemsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cms_page_items_total",
		Help: "Total primary items received from page fetches",
	})

	cmsPageFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cms_page_fetch_duration_seconds",
		Help:    "Page fetch duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})
)

// Config holds fetcher configuration.
type Config struct {
	// Logger receives per-page diagnostics. Defaults to the global logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{}
}

// Result is the outcome of a single page fetch. Exactly one of Err or the
// page data is meaningful.
type Result struct {
	Offset int
	Items  []collection.Item

	// Total is the authoritative collection size when the remote side
	// reported one.
	Total *int

	Err error
}

// OK reports whether the fetch succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Exhausted reports whether no further pages exist after this one.
// A reported total is authoritative; without one a page shorter than limit
// means the end was reached.
func (r Result) Exhausted(limit int) bool {
	if r.Err != nil {
		return false
	}
	if r.Total != nil {
		return r.Offset+len(r.Items) >= *r.Total
	}
	return len(r.Items) < limit
}

// Fetcher fetches pages from a collection source.
type Fetcher struct {
	source collection.Source
	logger zerolog.Logger
}

// NewFetcher creates a new page fetcher.
func NewFetcher(source collection.Source, config Config) *Fetcher {
	logger := log.With().Str("component", "page-fetcher").Logger()
	if config.Logger != nil {
		logger = config.Logger.With().Str("component", "page-fetcher").Logger()
	}
	return &Fetcher{
		source: source,
		logger: logger,
	}
}

// FetchPage fetches one page starting at offset with at most limit items.
func (f *Fetcher) FetchPage(ctx context.Context, offset, limit int) (res Result) {
	res.Offset = offset
	if offset < 0 || limit <= 0 {
		cmsPagesFetchedTotal.WithLabelValues("invalid").Inc()
		res.Err = fmt.Errorf("%w: offset=%d limit=%d", ErrInvalidRange, offset, limit)
		return res
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res = Result{Offset: offset, Err: fmt.Errorf("%w: %v", ErrSourcePanic, p)}
		}
		cmsPageFetchDuration.Observe(time.Since(start).Seconds())
		if res.Err != nil {
			cmsPagesFetchedTotal.WithLabelValues("failure").Inc()
			f.logger.Warn().
				Err(res.Err).
				Int("offset", offset).
				Int("limit", limit).
				Msg("Page fetch failed")
		}
	}()

	page, err := f.source.ListItems(ctx, offset, limit)
	if err != nil {
		res.Err = fmt.Errorf("fetch page at offset %d: %w", offset, err)
		return res
	}

	res.Items = page.Items
	res.Total = page.Total

	cmsPagesFetchedTotal.WithLabelValues("success").Inc()
	cmsPageItemsTotal.Add(float64(len(page.Items)))

	event := f.logger.Debug().
		Int("offset", offset).
		Int("limit", limit).
		Int("items", len(page.Items)).
		Dur("duration", time.Since(start))
	if page.Total != nil {
		event = event.Int("total", *page.Total)
	}
	event.Msg("Page fetched")

	return res
}
