package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CacheEntry is a cached proxy response.
type CacheEntry struct {
	Data []byte `json:"data"`

	// ETag is sent back as If-None-Match on revalidation.
	ETag string `json:"etag"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`

	LastModified time.Time `json:"last_modified"`

	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers"`
	CachedAt   time.Time   `json:"cached_at"`
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

const (
	// DefaultTTL is the fallback TTL when the response carries no freshness
	// information.
	DefaultTTL = 5 * time.Minute
)

// NewEntry builds a CacheEntry from a response's status, headers and body.
func NewEntry(status int, header http.Header, body []byte) *CacheEntry {
	if header == nil {
		header = http.Header{}
	}

	entry := &CacheEntry{
		Data:       append([]byte(nil), body...),
		ETag:       header.Get("ETag"),
		StatusCode: status,
		Headers:    header.Clone(),
		CachedAt:   time.Now(),
		Expires:    parseExpires(header),
	}

	if lastModStr := header.Get("Last-Modified"); lastModStr != "" {
		if lastMod, err := http.ParseTime(lastModStr); err == nil {
			entry.LastModified = lastMod
		}
	}

	return entry
}

// parseExpires derives the expiry from Cache-Control max-age, then Expires,
// falling back to DefaultTTL.
func parseExpires(headers http.Header) time.Time {
	now := time.Now()

	if maxAge, ok := parseMaxAge(headers.Get("Cache-Control")); ok {
		return now.Add(maxAge)
	}

	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		return now.Add(DefaultTTL)
	}

	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		return now.Add(DefaultTTL)
	}

	if expires.Before(now) {
		return now
	}

	return expires
}

func parseMaxAge(cacheControl string) (time.Duration, bool) {
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(directive), "=")
		if !found || !strings.EqualFold(name, "max-age") {
			continue
		}
		seconds, err := strconv.Atoi(strings.Trim(value, `"`))
		if err != nil || seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	return 0, false
}

// Refresh applies a 304 response's freshness headers to entry.
func Refresh(entry *CacheEntry, header http.Header) {
	if entry == nil {
		return
	}
	if header == nil {
		header = http.Header{}
	}
	entry.Expires = parseExpires(header)
	if etag := header.Get("ETag"); etag != "" {
		entry.ETag = etag
	}
	ConditionalRequests.Inc()
}
