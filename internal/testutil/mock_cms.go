// Package testutil provides test doubles for the CMS proxy and collection
// sources.
package testutil

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockItem is a collection item served by MockCMS.
type MockItem struct {
	ID       string
	Draft    bool
	Archived bool
	Fields   map[string]any
}

// MockResponse defines a canned response for a path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockCMS is a configurable CMS proxy for testing. It serves
// GET /collections/{id}/items and GET /collections/{id}/items/{itemId}.
type MockCMS struct {
	server *httptest.Server
	mux    *http.ServeMux

	mu          sync.RWMutex
	collections map[string][]MockItem
	handlers    map[string]http.HandlerFunc

	// ReportTotal controls whether list pages carry pagination.total.
	ReportTotal bool

	// MaxAge is sent as Cache-Control max-age on 200 and 304 responses.
	MaxAge int

	// Tracking
	RequestCount      int
	ConditionalCount  int
	LastRequestHeader http.Header
	paths             map[string]int
}

// NewMockCMS creates and starts a mock CMS server.
func NewMockCMS() *MockCMS {
	mock := &MockCMS{
		mux:         http.NewServeMux(),
		collections: make(map[string][]MockItem),
		handlers:    make(map[string]http.HandlerFunc),
		paths:       make(map[string]int),
		ReportTotal: true,
		MaxAge:      300,
	}

	mock.mux.HandleFunc("GET /collections/{collection}/items", mock.listHandler)
	mock.mux.HandleFunc("GET /collections/{collection}/items/{item}", mock.itemHandler)

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.paths[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.ConditionalCount++
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		mock.mux.ServeHTTP(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockCMS) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCMS) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockCMS) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.LastRequestHeader = nil
	m.paths = make(map[string]int)
}

// SetItems replaces the items of a collection.
func (m *MockCMS) SetItems(collection string, items ...MockItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[collection] = items
}

// SetHandler overrides the handler for an exact path.
func (m *MockCMS) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// ClearHandler removes a path override.
func (m *MockCMS) ClearHandler(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, path)
}

// SetResponse configures a canned response for a path.
func (m *MockCMS) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockCMS) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockCMS) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// PathCount returns the number of requests made for path.
func (m *MockCMS) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths[path]
}

func (m *MockCMS) listHandler(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	m.mu.RLock()
	items, ok := m.collections[r.PathValue("collection")]
	reportTotal := m.ReportTotal
	m.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "collection not found")
		return
	}

	end := min(offset+limit, len(items))
	start := min(offset, len(items))

	page := make([]map[string]any, 0, end-start)
	for _, it := range items[start:end] {
		page = append(page, itemPayload(it))
	}

	body := map[string]any{"items": page}
	if reportTotal {
		body["pagination"] = map[string]any{
			"offset": offset,
			"limit":  limit,
			"total":  len(items),
		}
	}
	m.writeJSON(w, r, body)
}

func (m *MockCMS) itemHandler(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	items := m.collections[r.PathValue("collection")]
	m.mu.RUnlock()

	id := r.PathValue("item")
	for _, it := range items {
		if it.ID == id {
			m.writeJSON(w, r, itemPayload(it))
			return
		}
	}
	writeError(w, http.StatusNotFound, "item not found")
}

// writeJSON writes body with an ETag derived from its content and answers
// 304 when the client already holds it.
func (m *MockCMS) writeJSON(w http.ResponseWriter, r *http.Request, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h := fnv.New64a()
	h.Write(data)
	etag := fmt.Sprintf(`"%x"`, h.Sum64())

	m.mu.RLock()
	maxAge := m.MaxAge
	m.mu.RUnlock()

	w.Header().Set("X-RateLimit-Remaining", "59")
	w.Header().Set("X-RateLimit-Limit", "60")
	w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d", maxAge))
	w.Header().Set("ETag", etag)

	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func itemPayload(it MockItem) map[string]any {
	fields := it.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	return map[string]any{
		"id":         it.ID,
		"isDraft":    it.Draft,
		"isArchived": it.Archived,
		"fieldData":  fields,
	}
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"message": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Retry-After":           strconv.Itoa(retryAfter),
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Limit":     "60",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message": "Internal server error"}`,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "58",
			"X-RateLimit-Limit":     "60",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}
