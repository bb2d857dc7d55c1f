// Package collection defines the records the loader works with and the
// interfaces it consumes from the remote CMS collection.
package collection

import (
	"context"
	"strconv"
)

// Item is one record of the primary collection being browsed.
// Field values follow the JSON decoding shape: string, float64, bool,
// or a list of entity reference ids ([]any or []string).
type Item struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fieldData"`
}

// Entity is the display data of a record referenced by an Item.
type Entity struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url,omitempty"`
}

// Page is one slice of the primary collection as returned by the list endpoint.
type Page struct {
	Items []Item

	// Total is the collection size reported by the remote side, nil when
	// the response carried no count.
	Total *int
}

// Source serves pages of the primary collection.
type Source interface {
	ListItems(ctx context.Context, offset, limit int) (Page, error)
}

// EntityFetcher fetches a single referenced record by id.
type EntityFetcher interface {
	FetchEntity(ctx context.Context, id string) (Entity, error)
}

// Value returns the raw field value and whether the field is present.
func (it Item) Value(field string) (any, bool) {
	if it.Fields == nil {
		return nil, false
	}
	v, ok := it.Fields[field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// String returns a string field. ok is false when the field is absent or
// holds something other than a string.
func (it Item) String(field string) (s string, ok bool) {
	v, present := it.Value(field)
	if !present {
		return "", false
	}
	s, ok = v.(string)
	return s, ok
}

// Text renders a scalar field as text. Lists and objects are not scalars.
func (it Item) Text(field string) (string, bool) {
	v, present := it.Value(field)
	if !present {
		return "", false
	}
	return scalarText(v)
}

// Refs returns the reference ids held by a list field. ok is false when the
// field is absent or is not a list of strings.
func (it Item) Refs(field string) ([]string, bool) {
	v, present := it.Value(field)
	if !present {
		return nil, false
	}
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		ids := make([]string, 0, len(list))
		for _, e := range list {
			id, isString := e.(string)
			if !isString {
				return nil, false
			}
			ids = append(ids, id)
		}
		return ids, true
	default:
		return nil, false
	}
}

// IsList reports whether the field holds a list value.
func (it Item) IsList(field string) bool {
	v, present := it.Value(field)
	if !present {
		return false
	}
	switch v.(type) {
	case []string, []any:
		return true
	}
	return false
}

func scalarText(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}

// ReferenceIDs collects the distinct reference ids held by the named list
// fields of items, in first-seen order. Fields with an invalid shape are
// ignored.
func ReferenceIDs(items []Item, fields []string) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, it := range items {
		for _, f := range fields {
			refs, ok := it.Refs(f)
			if !ok {
				continue
			}
			for _, id := range refs {
				if id == "" {
					continue
				}
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	return ids
}
