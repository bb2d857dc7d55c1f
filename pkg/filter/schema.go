// Package filter evaluates checkbox-group and free-text criteria against the
// loaded primary items.
package filter

import (
	"errors"
	"fmt"
	"strings"
)

// Kind selects how a group's accepted values are compared to an item field.
type Kind string

const (
	// KindAuto infers the comparison from the field value: lists use
	// multi-reference semantics, scalars use free-form semantics.
	KindAuto Kind = "auto"

	// KindMultiReference matches when the item's reference list shares at
	// least one id with the accepted values.
	KindMultiReference Kind = "multi-reference"

	// KindExact matches when the scalar field is one of the accepted values,
	// case-sensitively. Used for fields drawn from a fixed option set.
	KindExact Kind = "exact"

	// KindFreeForm matches when the scalar field equals one of the accepted
	// values after case folding.
	KindFreeForm Kind = "free-form"
)

// ErrInvalidSchema is returned by Schema.Validate.
var ErrInvalidSchema = errors.New("invalid filter schema")

// GroupSpec declares one checkbox group.
type GroupSpec struct {
	// Name identifies the group in Criteria.
	Name string `json:"name"`

	// Field is the item field the group constrains. Defaults to Name.
	Field string `json:"field,omitempty"`

	Kind Kind `json:"kind,omitempty"`
}

// FieldName returns the constrained field.
func (g GroupSpec) FieldName() string {
	if g.Field != "" {
		return g.Field
	}
	return g.Name
}

// Schema describes the filterable shape of a collection.
type Schema struct {
	Groups []GroupSpec `json:"groups"`

	// SearchFields are scalar fields matched by substring against the
	// free-text term.
	SearchFields []string `json:"search_fields"`

	// SearchReferenceField is a reference list field whose resolved entity
	// names also take part in free-text search.
	SearchReferenceField string `json:"search_reference_field,omitempty"`
}

// Group returns the spec for the named group.
func (s Schema) Group(name string) (GroupSpec, bool) {
	for _, g := range s.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return GroupSpec{}, false
}

// ReferenceFields returns the fields holding entity references that must be
// resolved for filtering and search: every multi-reference group field plus
// the search reference field.
func (s Schema) ReferenceFields() []string {
	seen := make(map[string]struct{})
	var fields []string
	add := func(f string) {
		if f == "" {
			return
		}
		if _, dup := seen[f]; dup {
			return
		}
		seen[f] = struct{}{}
		fields = append(fields, f)
	}
	for _, g := range s.Groups {
		if g.Kind == KindMultiReference {
			add(g.FieldName())
		}
	}
	add(s.SearchReferenceField)
	return fields
}

// Validate checks group names are unique and kinds are known.
func (s Schema) Validate() error {
	names := make(map[string]struct{}, len(s.Groups))
	for i, g := range s.Groups {
		if strings.TrimSpace(g.Name) == "" {
			return fmt.Errorf("%w: group %d has no name", ErrInvalidSchema, i)
		}
		if _, dup := names[g.Name]; dup {
			return fmt.Errorf("%w: duplicate group %q", ErrInvalidSchema, g.Name)
		}
		names[g.Name] = struct{}{}

		switch g.Kind {
		case "", KindAuto, KindMultiReference, KindExact, KindFreeForm:
		default:
			return fmt.Errorf("%w: group %q has unknown kind %q", ErrInvalidSchema, g.Name, g.Kind)
		}
	}
	for _, f := range s.SearchFields {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("%w: empty search field", ErrInvalidSchema)
		}
	}
	return nil
}
