package filter

import (
	"sort"
	"strings"
)

// Criteria is the active filter state: accepted values per checkbox group and
// a free-text search term. A group with no accepted values imposes no
// constraint. Criteria values are treated as immutable; the With helpers
// return modified copies.
type Criteria struct {
	Groups map[string][]string `json:"groups,omitempty"`
	Search string              `json:"search,omitempty"`
}

// WithGroup returns a copy with the group's accepted values replaced.
// Passing no values clears the group.
func (c Criteria) WithGroup(name string, values ...string) Criteria {
	out := c.clone()
	if len(values) == 0 {
		delete(out.Groups, name)
	} else {
		out.Groups[name] = append([]string(nil), values...)
	}
	return out
}

// WithSearch returns a copy with the search term replaced.
func (c Criteria) WithSearch(term string) Criteria {
	out := c.clone()
	out.Search = term
	return out
}

func (c Criteria) clone() Criteria {
	out := Criteria{
		Groups: make(map[string][]string, len(c.Groups)+1),
		Search: c.Search,
	}
	for k, v := range c.Groups {
		out.Groups[k] = v
	}
	return out
}

// NormalizedSearch returns the trimmed, lower-cased search term.
func (c Criteria) NormalizedSearch() string {
	return strings.ToLower(strings.TrimSpace(c.Search))
}

// ActiveGroups returns the names of groups with at least one accepted value,
// sorted for deterministic evaluation and logging.
func (c Criteria) ActiveGroups() []string {
	names := make([]string, 0, len(c.Groups))
	for name, values := range c.Groups {
		if len(values) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Active reports whether the criteria constrain anything.
func (c Criteria) Active() bool {
	return len(c.ActiveGroups()) > 0 || c.NormalizedSearch() != ""
}

// Equal reports whether two criteria select the same items.
func (c Criteria) Equal(o Criteria) bool {
	if c.NormalizedSearch() != o.NormalizedSearch() {
		return false
	}
	a, b := c.ActiveGroups(), o.ActiveGroups()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] || !sameSet(c.Groups[a[i]], o.Groups[b[i]]) {
			return false
		}
	}
	return true
}

func sameSet(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	other := make(map[string]struct{}, len(b))
	for _, v := range b {
		if _, ok := set[v]; !ok {
			return false
		}
		other[v] = struct{}{}
	}
	return len(set) == len(other)
}
