package cache

import (
	"net/http"
	"testing"
	"time"
)

func TestCacheEntry_IsExpired(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{
			name:    "expired entry",
			expires: time.Now().Add(-1 * time.Hour),
			want:    true,
		},
		{
			name:    "valid entry",
			expires: time.Now().Add(1 * time.Hour),
			want:    false,
		},
		{
			name:    "just expired",
			expires: time.Now().Add(-1 * time.Second),
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &CacheEntry{
				Expires: tt.expires,
			}
			if got := entry.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCacheEntry_TTL(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		wantMin time.Duration
		wantMax time.Duration
	}{
		{
			name:    "one hour remaining",
			expires: time.Now().Add(1 * time.Hour),
			wantMin: 59 * time.Minute,
			wantMax: 61 * time.Minute,
		},
		{
			name:    "already expired",
			expires: time.Now().Add(-1 * time.Hour),
			wantMin: 0,
			wantMax: 0,
		},
		{
			name:    "5 minutes remaining",
			expires: time.Now().Add(5 * time.Minute),
			wantMin: 4*time.Minute + 59*time.Second,
			wantMax: 5*time.Minute + 1*time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &CacheEntry{
				Expires: tt.expires,
			}
			got := entry.TTL()
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("TTL() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestNewEntry(t *testing.T) {
	lastMod := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	header := http.Header{
		"Etag":          []string{`"v1"`},
		"Last-Modified": []string{lastMod.Format(http.TimeFormat)},
		"Cache-Control": []string{"public, max-age=60"},
		"Content-Type":  []string{"application/json"},
	}
	body := []byte(`{"items":[]}`)

	entry := NewEntry(http.StatusOK, header, body)

	if string(entry.Data) != string(body) {
		t.Errorf("Data = %s, want %s", entry.Data, body)
	}
	if entry.ETag != `"v1"` {
		t.Errorf("ETag = %q, want %q", entry.ETag, `"v1"`)
	}
	if !entry.LastModified.Equal(lastMod) {
		t.Errorf("LastModified = %v, want %v", entry.LastModified, lastMod)
	}
	if ttl := entry.TTL(); ttl < 58*time.Second || ttl > 61*time.Second {
		t.Errorf("TTL = %v, want about 60s from max-age", ttl)
	}

	// The entry owns its body and headers.
	body[0] = 'x'
	header.Set("Etag", "changed")
	if entry.Data[0] != '{' || entry.Headers.Get("Etag") != `"v1"` {
		t.Error("Entry shares memory with the response")
	}
}

func TestNewEntry_NilHeader(t *testing.T) {
	entry := NewEntry(http.StatusOK, nil, nil)
	if entry.Headers == nil {
		t.Error("Headers should be non-nil")
	}
	if entry.TTL() < DefaultTTL-time.Second {
		t.Errorf("TTL = %v, want DefaultTTL", entry.TTL())
	}
}

func TestParseExpires(t *testing.T) {
	now := time.Now()
	futureTime := now.Add(1 * time.Hour)
	pastTime := now.Add(-1 * time.Hour)
	tolerance := 2 * time.Second

	tests := []struct {
		name    string
		headers http.Header
		want    time.Time
	}{
		{
			name:    "valid expires header",
			headers: http.Header{"Expires": []string{futureTime.Format(http.TimeFormat)}},
			want:    futureTime,
		},
		{
			name:    "no freshness headers",
			headers: http.Header{},
			want:    now.Add(DefaultTTL),
		},
		{
			name:    "invalid expires header",
			headers: http.Header{"Expires": []string{"not a valid date"}},
			want:    now.Add(DefaultTTL),
		},
		{
			name:    "expires in the past",
			headers: http.Header{"Expires": []string{pastTime.Format(http.TimeFormat)}},
			want:    now,
		},
		{
			name: "max-age wins over expires",
			headers: http.Header{
				"Cache-Control": []string{"max-age=30"},
				"Expires":       []string{futureTime.Format(http.TimeFormat)},
			},
			want: now.Add(30 * time.Second),
		},
		{
			name:    "invalid max-age falls back",
			headers: http.Header{"Cache-Control": []string{"max-age=soon"}},
			want:    now.Add(DefaultTTL),
		},
		{
			name:    "no-cache without max-age",
			headers: http.Header{"Cache-Control": []string{"no-cache"}},
			want:    now.Add(DefaultTTL),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseExpires(tt.headers)
			diff := got.Sub(tt.want)
			if diff < -tolerance || diff > tolerance {
				t.Errorf("parseExpires() = %v, want approximately %v (diff: %v)", got, tt.want, diff)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	entry := &CacheEntry{
		ETag:    `"v1"`,
		Expires: time.Now().Add(-time.Minute),
	}

	Refresh(entry, http.Header{"Cache-Control": []string{"max-age=120"}})

	if entry.IsExpired() {
		t.Error("Refreshed entry should be fresh")
	}
	if entry.ETag != `"v1"` {
		t.Errorf("ETag = %q, want unchanged", entry.ETag)
	}

	Refresh(entry, http.Header{"Etag": []string{`"v2"`}})
	if entry.ETag != `"v2"` {
		t.Errorf("ETag = %q, want %q", entry.ETag, `"v2"`)
	}

	// Must not panic.
	Refresh(nil, nil)
}
