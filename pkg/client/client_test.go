package client

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/collection-loader/internal/testutil"
	"github.com/Sternrassler/collection-loader/pkg/collection"
	"github.com/Sternrassler/collection-loader/pkg/filter"
	"github.com/Sternrassler/collection-loader/pkg/loader"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

const testUserAgent = "collection-loader-test/1.0 (test@example.com)"

func newTestClient(t *testing.T, mock *testutil.MockCMS) *Client {
	t.Helper()

	logger := zerolog.Nop()
	cfg := DefaultConfig(mock.URL(), testUserAgent)
	cfg.Collection = "videos"
	cfg.EntityCollection = "sponsors"
	cfg.Logger = &logger
	cfg.RateLimit.ThrottleDelay = 0

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func seedMock(mock *testutil.MockCMS) {
	mock.SetItems("videos",
		testutil.MockItem{ID: "v1", Fields: map[string]any{"name": "Opening", "sponsors": []any{"s1"}}},
		testutil.MockItem{ID: "v2", Fields: map[string]any{"name": "Storage", "sponsors": []any{"s2"}}},
		testutil.MockItem{ID: "v3", Draft: true, Fields: map[string]any{"name": "Unpublished"}},
		testutil.MockItem{ID: "v4", Fields: map[string]any{"name": "Panel", "sponsors": []any{"s1", "s2"}}},
		testutil.MockItem{ID: "v5", Archived: true, Fields: map[string]any{"name": "Old"}},
	)
	mock.SetItems("sponsors",
		testutil.MockItem{ID: "s1", Fields: map[string]any{"name": "Acme Corp", "logo": "https://img.example.com/acme.png"}},
		testutil.MockItem{ID: "s2", Fields: map[string]any{"name": "Globex", "logo": map[string]any{"url": "https://img.example.com/globex.png", "alt": "Globex"}}},
	)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{
			name:        "valid config",
			config:      DefaultConfig("http://localhost:8080", testUserAgent),
			expectError: false,
		},
		{
			name:        "empty base url",
			config:      DefaultConfig("", testUserAgent),
			expectError: true,
		},
		{
			name:        "relative base url",
			config:      DefaultConfig("cms.example.com", testUserAgent),
			expectError: true,
		},
		{
			name:        "empty user agent",
			config:      DefaultConfig("http://localhost:8080", ""),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)
			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if c.Cache() == nil || c.RateLimiter() == nil {
				t.Error("Client dependencies not initialized")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("http://localhost", testUserAgent)

	if cfg.NameField != "name" || cfg.ImageField != "logo" {
		t.Errorf("Unexpected entity fields %q/%q", cfg.NameField, cfg.ImageField)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.Redis != nil {
		t.Error("Default config should not carry a Redis client")
	}
}

func TestListItems(t *testing.T) {
	mock := testutil.NewMockCMS()
	defer mock.Close()
	seedMock(mock)

	c := newTestClient(t, mock)
	page, err := c.ListItems(context.Background(), 0, 3)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}

	// v3 is a draft and v5 archived: the page is filled from the next
	// upstream page and the total excludes both.
	want := []collection.Item{
		{ID: "v1", Fields: map[string]any{"name": "Opening", "sponsors": []any{"s1"}}},
		{ID: "v2", Fields: map[string]any{"name": "Storage", "sponsors": []any{"s2"}}},
		{ID: "v4", Fields: map[string]any{"name": "Panel", "sponsors": []any{"s1", "s2"}}},
	}
	if diff := cmp.Diff(want, page.Items); diff != "" {
		t.Errorf("Items mismatch (-want +got):\n%s", diff)
	}
	if page.Total == nil || *page.Total != 3 {
		t.Errorf("Total = %v, want 3", page.Total)
	}
	if got := mock.GetRequestCount(); got != 2 {
		t.Errorf("Request count = %d, want 2", got)
	}

	if ua := mock.LastRequestHeader.Get("User-Agent"); ua != testUserAgent {
		t.Errorf("User-Agent = %q, want %q", ua, testUserAgent)
	}
}

func TestListItems_OffsetsSkipUnpublished(t *testing.T) {
	mock := testutil.NewMockCMS()
	defer mock.Close()
	seedMock(mock)

	c := newTestClient(t, mock)
	ctx := context.Background()

	var ids []string
	offset := 0
	for range 4 {
		page, err := c.ListItems(ctx, offset, 2)
		if err != nil {
			t.Fatalf("ListItems(%d) failed: %v", offset, err)
		}
		for _, it := range page.Items {
			ids = append(ids, it.ID)
		}
		offset += len(page.Items)
		if len(page.Items) < 2 {
			break
		}
	}

	if diff := cmp.Diff([]string{"v1", "v2", "v4"}, ids); diff != "" {
		t.Errorf("Collected ids mismatch (-want +got):\n%s", diff)
	}
}

func TestListItems_NoTotal(t *testing.T) {
	mock := testutil.NewMockCMS()
	defer mock.Close()
	seedMock(mock)
	mock.ReportTotal = false

	c := newTestClient(t, mock)
	page, err := c.ListItems(context.Background(), 3, 3)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if page.Total != nil {
		t.Errorf("Total = %d, want nil", *page.Total)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "v4" {
		t.Errorf("Unexpected items %+v", page.Items)
	}
}

func TestListItems_InvalidBody(t *testing.T) {
	mock := testutil.NewMockCMS()
	defer mock.Close()
	mock.SetResponse("/collections/videos/items", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `<html>maintenance</html>`,
	})

	c := newTestClient(t, mock)
	_, err := c.ListItems(context.Background(), 0, 3)
	if !errors.Is(err, ErrDecode) {
		t.Errorf("Expected ErrDecode, got %v", err)
	}
}

func TestFetchEntity(t *testing.T) {
	mock := testutil.NewMockCMS()
	defer mock.Close()
	seedMock(mock)

	c := newTestClient(t, mock)
	ctx := context.Background()

	tests := []struct {
		id   string
		want collection.Entity
	}{
		{"s1", collection.Entity{ID: "s1", Name: "Acme Corp", ImageURL: "https://img.example.com/acme.png"}},
		{"s2", collection.Entity{ID: "s2", Name: "Globex", ImageURL: "https://img.example.com/globex.png"}},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := c.FetchEntity(ctx, tt.id)
			if err != nil {
				t.Fatalf("FetchEntity failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Entity mismatch (-want +got):\n%s", diff)
			}
		})
	}

	_, err := c.FetchEntity(ctx, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	var cmsErr *CMSError
	if !errors.As(err, &cmsErr) || cmsErr.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 CMSError, got %v", err)
	}
}

func TestFetch_CacheHit(t *testing.T) {
	mock := testutil.NewMockCMS()
	defer mock.Close()
	seedMock(mock)

	c := newTestClient(t, mock)
	ctx := context.Background()

	if _, err := c.ListItems(ctx, 0, 2); err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if _, err := c.ListItems(ctx, 0, 2); err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("Request count = %d, want 1", got)
	}
	if got := mock.PathCount("/collections/videos/items"); got != 1 {
		t.Errorf("List path count = %d, want 1", got)
	}
}

func TestFetch_NotModifiedRefreshesEntry(t *testing.T) {
	mock := testutil.NewMockCMS()
	defer mock.Close()
	seedMock(mock)
	mock.MaxAge = 1

	c := newTestClient(t, mock)
	ctx := context.Background()

	first, err := c.Fetch(ctx, "videos", "/items/v1", nil)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if first.Cached {
		t.Error("First fetch should hit the network")
	}

	time.Sleep(1100 * time.Millisecond)

	second, err := c.Fetch(ctx, "videos", "/items/v1", nil)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !second.Cached {
		t.Error("304 should be served from cache")
	}
	if string(second.Body) != string(first.Body) {
		t.Errorf("Body changed across revalidation")
	}
	if got := mock.GetConditionalCount(); got != 1 {
		t.Errorf("Conditional requests = %d, want 1", got)
	}
	if got := mock.GetRequestCount(); got != 2 {
		t.Errorf("Request count = %d, want 2", got)
	}
}

func TestFetch_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		response  testutil.MockResponse
		wantClass ErrorClass
		wantErr   error
	}{
		{
			name:      "server error",
			response:  testutil.NewServerErrorResponse(),
			wantClass: ErrorClassServer,
		},
		{
			name:      "rate limited",
			response:  testutil.NewRateLimitResponse(60),
			wantClass: ErrorClassRateLimit,
			wantErr:   ErrRateLimited,
		},
		{
			name:      "bad request",
			response:  testutil.MockResponse{StatusCode: http.StatusBadRequest},
			wantClass: ErrorClassClient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockCMS()
			defer mock.Close()
			mock.SetResponse("/collections/videos/items", tt.response)

			c := newTestClient(t, mock)
			_, err := c.ListItems(context.Background(), 0, 10)

			var cmsErr *CMSError
			if !errors.As(err, &cmsErr) {
				t.Fatalf("Expected *CMSError, got %v", err)
			}
			if cmsErr.Class != tt.wantClass {
				t.Errorf("Class = %q, want %q", cmsErr.Class, tt.wantClass)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestFetch_RateLimitBlocksFollowingRequests(t *testing.T) {
	mock := testutil.NewMockCMS()
	defer mock.Close()
	seedMock(mock)
	mock.SetResponse("/collections/videos/items", testutil.NewRateLimitResponse(60))

	c := newTestClient(t, mock)
	ctx := context.Background()

	if _, err := c.ListItems(ctx, 0, 2); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Expected ErrRateLimited, got %v", err)
	}

	_, err := c.FetchEntity(ctx, "s1")
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("Expected local block, got %v", err)
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("Request count = %d, want 1 (second request must not be sent)", got)
	}
}

func TestFetch_NetworkError(t *testing.T) {
	mock := testutil.NewMockCMS()
	c := newTestClient(t, mock)
	mock.Close()

	_, err := c.ListItems(context.Background(), 0, 2)
	var cmsErr *CMSError
	if !errors.As(err, &cmsErr) {
		t.Fatalf("Expected *CMSError, got %v", err)
	}
	if cmsErr.Class != ErrorClassNetwork {
		t.Errorf("Class = %q, want %q", cmsErr.Class, ErrorClassNetwork)
	}
}

func TestImageURL(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"string", "https://x/y.png", "https://x/y.png"},
		{"object", map[string]any{"url": "https://x/z.png"}, "https://x/z.png"},
		{"object without url", map[string]any{"alt": "z"}, ""},
		{"missing", nil, ""},
		{"wrong type", 42.0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := imageURL(tt.value); got != tt.want {
				t.Errorf("imageURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestLoaderOverClient drives a Loader against the mock proxy.
func TestLoaderOverClient(t *testing.T) {
	mock := testutil.NewMockCMS()
	defer mock.Close()
	seedMock(mock)

	c := newTestClient(t, mock)

	var rendered []string
	renderer := loader.RendererFuncs{
		FullReplace: func(items []collection.Item) {
			rendered = rendered[:0]
			for _, it := range items {
				rendered = append(rendered, it.ID)
			}
		},
		Append: func(items []collection.Item) {
			for _, it := range items {
				rendered = append(rendered, it.ID)
			}
		},
	}

	logger := zerolog.Nop()
	cfg := loader.DefaultConfig()
	cfg.PageSize = 10
	cfg.BatchSize = 10
	cfg.Logger = &logger
	cfg.Schema = filter.Schema{
		Groups:               []filter.GroupSpec{{Name: "sponsors", Kind: filter.KindMultiReference}},
		SearchFields:         []string{"name"},
		SearchReferenceField: "sponsors",
	}

	l, err := loader.New(c, c, renderer, cfg)
	if err != nil {
		t.Fatalf("loader.New failed: %v", err)
	}

	ctx := context.Background()
	if err := l.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if diff := cmp.Diff([]string{"v1", "v2", "v4"}, rendered); diff != "" {
		t.Errorf("Rendered mismatch (-want +got):\n%s", diff)
	}
	if l.Entities().Len() != 2 {
		t.Errorf("Resolved %d entities, want 2", l.Entities().Len())
	}

	l.SetSearch("globex")
	if diff := cmp.Diff([]string{"v2", "v4"}, rendered); diff != "" {
		t.Errorf("Rendered mismatch (-want +got):\n%s", diff)
	}
}

func TestPing(t *testing.T) {
	mock := testutil.NewMockCMS()
	defer mock.Close()
	seedMock(mock)

	c := newTestClient(t, mock)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	mock.SetResponse("/collections/videos/items", testutil.NewServerErrorResponse())
	c = newTestClient(t, mock)
	if err := c.Ping(context.Background()); err == nil {
		t.Error("Expected Ping to fail against a failing proxy")
	}
}
