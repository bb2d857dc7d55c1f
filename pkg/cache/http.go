package cache

import "net/http"

// ShouldMakeConditionalRequest reports whether entry carries a validator.
func ShouldMakeConditionalRequest(entry *CacheEntry) bool {
	if entry == nil {
		return false
	}
	return entry.ETag != "" || !entry.LastModified.IsZero()
}

// ConditionalHeaders returns the If-None-Match or If-Modified-Since header
// for revalidating entry. ETag wins when both validators exist.
func ConditionalHeaders(entry *CacheEntry) map[string]string {
	headers := make(map[string]string, 1)
	if entry == nil {
		return headers
	}

	if entry.ETag != "" {
		headers["If-None-Match"] = entry.ETag
	} else if !entry.LastModified.IsZero() {
		headers["If-Modified-Since"] = entry.LastModified.UTC().Format(http.TimeFormat)
	}
	return headers
}

// IsNotModified reports whether status confirms a cached entry is current.
func IsNotModified(status int) bool {
	return status == http.StatusNotModified
}
