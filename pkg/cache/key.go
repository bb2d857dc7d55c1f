package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// CacheKey identifies a cached proxy response.
type CacheKey struct {
	// Collection is the collection id the request belongs to.
	Collection string

	// Path is the request path below the collection (e.g. "/items" or
	// "/items/abc123").
	Path string

	QueryParams url.Values
}

// String generates a deterministic key.
// Format: cms:collection:path:query1=val1:query2=val2
//
// Example:
//
//	cms:videos:items:limit=24:offset=0
func (k CacheKey) String() string {
	parts := []string{"cms"}

	if k.Collection != "" {
		parts = append(parts, k.Collection)
	}

	if path := strings.Trim(k.Path, "/"); path != "" {
		parts = append(parts, path)
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			values := append([]string(nil), k.QueryParams[key]...)
			sort.Strings(values)
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(values, ",")))
		}
	}

	return strings.Join(parts, ":")
}
