package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/Sternrassler/collection-loader/pkg/collection"
)

// MemorySource is an in-memory collection serving pages and entities with
// call tracking and failure injection.
type MemorySource struct {
	mu sync.Mutex

	items    []collection.Item
	entities map[string]collection.Entity

	// ReportTotal controls whether pages carry the collection size.
	ReportTotal bool

	// TotalOverride, when non-nil, is reported instead of the real size.
	TotalOverride *int

	pageFailures   map[int]error
	entityFailures map[string]error

	pageCalls   int
	pageOffsets []int
	entityCalls map[string]int

	gate    chan struct{}
	entered chan struct{}
}

// NewMemorySource creates a source holding items and entities.
func NewMemorySource(items []collection.Item, entities ...collection.Entity) *MemorySource {
	m := &MemorySource{
		items:          items,
		entities:       make(map[string]collection.Entity),
		ReportTotal:    true,
		pageFailures:   make(map[int]error),
		entityFailures: make(map[string]error),
		entityCalls:    make(map[string]int),
	}
	for _, e := range entities {
		m.entities[e.ID] = e
	}
	return m
}

// ListItems implements collection.Source.
func (m *MemorySource) ListItems(ctx context.Context, offset, limit int) (collection.Page, error) {
	m.mu.Lock()
	m.pageCalls++
	m.pageOffsets = append(m.pageOffsets, offset)
	gate, entered := m.gate, m.entered
	failure := m.pageFailures[offset]
	m.mu.Unlock()

	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return collection.Page{}, ctx.Err()
		}
	}

	if failure != nil {
		return collection.Page{}, failure
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	end := offset + limit
	if offset > len(m.items) {
		offset = len(m.items)
	}
	if end > len(m.items) {
		end = len(m.items)
	}
	page := collection.Page{
		Items: append([]collection.Item(nil), m.items[offset:end]...),
	}
	if m.TotalOverride != nil {
		total := *m.TotalOverride
		page.Total = &total
	} else if m.ReportTotal {
		total := len(m.items)
		page.Total = &total
	}
	return page, nil
}

// FetchEntity implements collection.EntityFetcher.
func (m *MemorySource) FetchEntity(ctx context.Context, id string) (collection.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entityCalls[id]++
	if err := m.entityFailures[id]; err != nil {
		return collection.Entity{}, err
	}
	e, ok := m.entities[id]
	if !ok {
		return collection.Entity{}, fmt.Errorf("entity %s not found", id)
	}
	return e, nil
}

// FailPage makes the page at offset fail with err until cleared with nil.
func (m *MemorySource) FailPage(offset int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.pageFailures, offset)
		return
	}
	m.pageFailures[offset] = err
}

// FailEntity makes fetches of id fail with err.
func (m *MemorySource) FailEntity(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entityFailures[id] = err
}

// Append adds items to the end of the collection.
func (m *MemorySource) Append(items ...collection.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, items...)
}

// HoldPages makes subsequent page fetches block until release is called.
// entered receives a value each time a fetch reaches the hold.
func (m *MemorySource) HoldPages() (entered <-chan struct{}, release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	gate := make(chan struct{})
	ch := make(chan struct{}, 1)
	m.gate = gate
	m.entered = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			m.gate = nil
			m.entered = nil
			m.mu.Unlock()
			close(gate)
		})
	}
}

// PageCalls returns the number of page fetches made.
func (m *MemorySource) PageCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pageCalls
}

// PageOffsets returns the offsets requested, in call order.
func (m *MemorySource) PageOffsets() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.pageOffsets...)
}

// EntityCalls returns the number of fetches made for id.
func (m *MemorySource) EntityCalls(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entityCalls[id]
}

// TotalEntityCalls returns the number of entity fetches made for any id.
func (m *MemorySource) TotalEntityCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.entityCalls {
		n += c
	}
	return n
}

// Items builds n items with ids "item-1".."item-n" and a "name" field.
func Items(n int) []collection.Item {
	items := make([]collection.Item, n)
	for i := range items {
		items[i] = collection.Item{
			ID: fmt.Sprintf("item-%d", i+1),
			Fields: map[string]any{
				"name": fmt.Sprintf("Item %d", i+1),
			},
		}
	}
	return items
}
