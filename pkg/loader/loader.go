// Package loader orchestrates incremental loading of a remote collection:
// pages are fetched on demand, referenced entities resolved, the loaded set
// filtered client-side and revealed to a Renderer in batches.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/collection-loader/pkg/collection"
	"github.com/Sternrassler/collection-loader/pkg/entity"
	"github.com/Sternrassler/collection-loader/pkg/filter"
	"github.com/Sternrassler/collection-loader/pkg/pagination"
	"github.com/Sternrassler/collection-loader/pkg/reveal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrFetchInFlight is returned when a page advance is requested while
// another page fetch is outstanding.
var ErrFetchInFlight = errors.New("page fetch already in flight")

// Prometheus metrics for the loader.
var (
	cmsFilterEvaluationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cms_filter_evaluations_total",
		Help: "Total filtered view recomputations",
	})

	cmsFilterDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cms_filter_duration_seconds",
		Help:    "Filtered view recomputation duration in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})

	cmsItemsRevealedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cms_items_revealed_total",
		Help: "Total items handed to the renderer by emission kind",
	}, []string{"kind"})

	cmsFetchInFlightRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cms_fetch_in_flight_rejections_total",
		Help: "Total page advances rejected because a fetch was outstanding",
	})
)

// Config holds loader configuration.
type Config struct {
	// PageSize is the limit requested per remote page.
	PageSize int

	// BatchSize is the number of items revealed per show-more request.
	BatchSize int

	// Schema describes filter groups and searchable fields.
	Schema filter.Schema

	// MaxEntityConcurrency bounds parallel entity fetches.
	MaxEntityConcurrency int

	// Entities is an optional shared entity cache.
	Entities *entity.Cache

	Logger *zerolog.Logger
}

// DefaultConfig returns the default loader configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:             24,
		BatchSize:            12,
		MaxEntityConcurrency: 8,
	}
}

// Loader owns the loaded items, the filter criteria, the filtered view and
// the reveal cursor. It is the only writer of that state.
type Loader struct {
	mu sync.Mutex

	fetcher   *pagination.Fetcher
	resolver  *entity.Resolver
	evaluator *filter.Evaluator
	cursor    *reveal.Cursor
	renderer  Renderer
	config    Config
	logger    zerolog.Logger

	state    LoadState
	criteria filter.Criteria
	view     []collection.Item
}

// New creates a loader reading pages from source and entities from
// entities, emitting to renderer. A nil renderer discards output.
func New(source collection.Source, entities collection.EntityFetcher, renderer Renderer, cfg Config) (*Loader, error) {
	if source == nil {
		return nil, fmt.Errorf("page source is required")
	}
	if entities == nil {
		return nil, fmt.Errorf("entity fetcher is required")
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("page_size must be > 0 (got %d)", cfg.PageSize)
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch_size must be > 0 (got %d)", cfg.BatchSize)
	}
	if err := cfg.Schema.Validate(); err != nil {
		return nil, err
	}
	if renderer == nil {
		renderer = NopRenderer{}
	}

	logger := log.With().Str("component", "loader").Logger()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "loader").Logger()
	}

	return &Loader{
		fetcher: pagination.NewFetcher(source, pagination.Config{Logger: cfg.Logger}),
		resolver: entity.NewResolver(entities, cfg.Entities, entity.Config{
			MaxConcurrency: cfg.MaxEntityConcurrency,
			Logger:         cfg.Logger,
		}),
		evaluator: filter.NewEvaluator(cfg.Schema, cfg.Logger),
		cursor:    reveal.New(cfg.BatchSize),
		renderer:  renderer,
		config:    cfg,
		logger:    logger,
	}, nil
}

// Start loads the first page and renders the leading batch. On failure the
// renderer receives OnLoadError and the error is returned; Start may be
// called again to retry.
func (l *Loader) Start(ctx context.Context) error {
	start := time.Now()

	if err := l.advance(ctx); err != nil {
		if errors.Is(err, ErrFetchInFlight) {
			return err
		}
		l.logger.Error().Err(err).Msg("Initial load failed")
		l.emit(loadError(err.Error()), availability(false))
		return err
	}

	l.mu.Lock()
	events := l.filtersChangedLocked()
	items, view := len(l.state.Items), len(l.view)
	l.mu.Unlock()

	l.logger.Info().
		Int("items", items).
		Int("matching", view).
		Dur("duration", time.Since(start)).
		Msg("Initial page loaded")

	l.emit(events...)
	return nil
}

// RequestMore handles a show-more request: it reveals already filtered
// items when any are left, otherwise advances to the next remote page and
// reveals from it. A page fetch failure is returned; existing content stays
// and the request may be repeated.
func (l *Loader) RequestMore(ctx context.Context) error {
	l.mu.Lock()
	canFetch := l.state.MoreMayExist() && !l.state.FetchInFlight
	step := l.cursor.Next(len(l.view), canFetch)

	switch step.Action {
	case reveal.Reveal:
		events := l.revealLocked()
		l.mu.Unlock()
		l.emit(events...)
		return nil

	case reveal.Exhausted:
		inFlight := l.state.FetchInFlight
		l.mu.Unlock()
		if inFlight {
			cmsFetchInFlightRejectionsTotal.Inc()
			l.logger.Debug().Msg("Show more ignored while a page fetch is outstanding")
			return nil
		}
		l.emit(availability(false))
		return nil
	}
	l.mu.Unlock()

	if err := l.advance(ctx); err != nil {
		if errors.Is(err, ErrFetchInFlight) {
			return nil
		}
		l.logger.Warn().Err(err).Msg("Page advance failed")
		l.emit(availability(true))
		return err
	}

	l.mu.Lock()
	events := l.revealLocked()
	l.mu.Unlock()
	l.emit(events...)
	return nil
}

// SetCriteria replaces the filter criteria, recomputes the view and renders
// its leading batch as a full replacement.
func (l *Loader) SetCriteria(criteria filter.Criteria) {
	l.mu.Lock()
	l.criteria = criteria
	events := l.filtersChangedLocked()
	l.mu.Unlock()

	l.logger.Debug().
		Strs("groups", criteria.ActiveGroups()).
		Str("search", criteria.NormalizedSearch()).
		Msg("Filter criteria changed")

	l.emit(events...)
}

// SetGroup replaces one group's accepted values. No values clears it.
func (l *Loader) SetGroup(name string, values ...string) {
	l.mu.Lock()
	criteria := l.criteria.WithGroup(name, values...)
	l.mu.Unlock()
	l.SetCriteria(criteria)
}

// SetSearch replaces the free-text term. Debouncing is the caller's concern.
func (l *Loader) SetSearch(term string) {
	l.mu.Lock()
	criteria := l.criteria.WithSearch(term)
	l.mu.Unlock()
	l.SetCriteria(criteria)
}

// State returns a snapshot of the load state.
func (l *Loader) State() LoadState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.clone()
}

// View returns a snapshot of the filtered view.
func (l *Loader) View() []collection.Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]collection.Item(nil), l.view...)
}

// Displayed returns how many leading view items have been revealed.
func (l *Loader) Displayed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor.Displayed()
}

// Criteria returns the active criteria.
func (l *Loader) Criteria() filter.Criteria {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.criteria
}

// Entities returns the entity cache used for display and search.
func (l *Loader) Entities() *entity.Cache {
	return l.resolver.Cache()
}

// advance fetches the next page, merges it, resolves its new references and
// refreshes the view without moving the cursor. At most one advance runs at
// a time.
func (l *Loader) advance(ctx context.Context) error {
	l.mu.Lock()
	if l.state.FetchInFlight {
		l.mu.Unlock()
		cmsFetchInFlightRejectionsTotal.Inc()
		return ErrFetchInFlight
	}
	l.state.FetchInFlight = true
	offset := len(l.state.Items)
	l.mu.Unlock()

	res := l.fetcher.FetchPage(ctx, offset, l.config.PageSize)
	if res.Err != nil {
		l.mu.Lock()
		l.state.FetchInFlight = false
		l.mu.Unlock()
		return res.Err
	}

	l.mu.Lock()
	l.state.Pages++
	if len(res.Items) == 0 {
		l.state.Total = len(l.state.Items)
		l.state.TotalKnown = true
		l.state.LastPageFull = false
		l.state.FetchInFlight = false
		l.refilterLocked()
		l.mu.Unlock()

		l.logger.Debug().Int("offset", offset).Msg("Empty page, collection exhausted")
		return nil
	}

	l.state.Items = append(l.state.Items, res.Items...)
	l.state.NextOffset = len(l.state.Items)
	l.state.LastPageFull = len(res.Items) >= l.config.PageSize
	if res.Total != nil {
		l.state.Total = *res.Total
		l.state.TotalKnown = true
	}
	refs := collection.ReferenceIDs(res.Items, l.config.Schema.ReferenceFields())
	l.mu.Unlock()

	report := l.resolver.Resolve(ctx, refs)

	l.mu.Lock()
	l.state.FetchInFlight = false
	l.refilterLocked()
	loaded := len(l.state.Items)
	l.mu.Unlock()

	l.logger.Debug().
		Int("offset", offset).
		Int("received", len(res.Items)).
		Int("loaded", loaded).
		Int("entities_requested", report.Requested).
		Int("entities_failed", len(report.Failed)).
		Msg("Page merged")

	return nil
}

// refilterLocked recomputes the view over every loaded item.
func (l *Loader) refilterLocked() {
	start := time.Now()
	l.view = l.evaluator.Evaluate(l.state.Items, l.criteria, l.resolver.Cache())
	l.cursor.Clamp(len(l.view))
	cmsFilterEvaluationsTotal.Inc()
	cmsFilterDuration.Observe(time.Since(start).Seconds())
}

// filtersChangedLocked recomputes the view, resets the cursor and returns the
// events replacing rendered content with the leading batch.
func (l *Loader) filtersChangedLocked() []event {
	l.refilterLocked()
	end := l.cursor.Reset(len(l.view))
	leading := append([]collection.Item(nil), l.view[:end]...)
	cmsItemsRevealedTotal.WithLabelValues("replace").Add(float64(len(leading)))

	return []event{
		fullReplace(leading),
		availability(l.availableLocked()),
	}
}

// revealLocked advances the cursor by one batch and returns the events
// appending it.
func (l *Loader) revealLocked() []event {
	from, to := l.cursor.Advance(len(l.view))

	var events []event
	if to > from {
		batch := append([]collection.Item(nil), l.view[from:to]...)
		cmsItemsRevealedTotal.WithLabelValues("append").Add(float64(len(batch)))
		events = append(events, appendItems(batch))
	}
	return append(events, availability(l.availableLocked()))
}

// availableLocked reports whether a show-more request could produce items.
func (l *Loader) availableLocked() bool {
	return l.cursor.Remaining(len(l.view)) || l.state.MoreMayExist()
}

func (l *Loader) emit(events ...event) {
	for _, e := range events {
		e(l.renderer)
	}
}
