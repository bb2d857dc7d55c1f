package cache

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestShouldMakeConditionalRequest(t *testing.T) {
	tests := []struct {
		name  string
		entry *CacheEntry
		want  bool
	}{
		{
			name:  "nil entry",
			entry: nil,
			want:  false,
		},
		{
			name:  "entry with ETag",
			entry: &CacheEntry{ETag: `"abc123"`},
			want:  true,
		},
		{
			name:  "entry with Last-Modified",
			entry: &CacheEntry{LastModified: time.Now()},
			want:  true,
		},
		{
			name:  "entry without validators",
			entry: &CacheEntry{Data: []byte("data")},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldMakeConditionalRequest(tt.entry); got != tt.want {
				t.Errorf("ShouldMakeConditionalRequest() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConditionalHeaders(t *testing.T) {
	lastMod := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		entry *CacheEntry
		want  map[string]string
	}{
		{
			name:  "If-None-Match with ETag",
			entry: &CacheEntry{ETag: `"abc123"`},
			want:  map[string]string{"If-None-Match": `"abc123"`},
		},
		{
			name:  "If-Modified-Since with Last-Modified",
			entry: &CacheEntry{LastModified: lastMod},
			want:  map[string]string{"If-Modified-Since": "Sun, 01 Jan 2023 12:00:00 GMT"},
		},
		{
			name:  "prefer ETag over Last-Modified",
			entry: &CacheEntry{ETag: `"abc123"`, LastModified: lastMod},
			want:  map[string]string{"If-None-Match": `"abc123"`},
		},
		{
			name:  "no validators",
			entry: &CacheEntry{},
			want:  map[string]string{},
		},
		{
			name:  "nil entry",
			entry: nil,
			want:  map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConditionalHeaders(tt.entry)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ConditionalHeaders() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIsNotModified(t *testing.T) {
	if !IsNotModified(http.StatusNotModified) {
		t.Error("304 should be not modified")
	}
	if IsNotModified(http.StatusOK) {
		t.Error("200 should not be not modified")
	}
}
