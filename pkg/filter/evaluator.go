package filter

import (
	"strings"

	"github.com/Sternrassler/collection-loader/pkg/collection"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EntityNames resolves reference ids to their space-joined display names.
// Unresolved ids contribute nothing.
type EntityNames interface {
	Names(ids []string) string
}

// Evaluator applies Criteria to items according to a Schema.
type Evaluator struct {
	schema Schema
	logger zerolog.Logger
}

// NewEvaluator creates an evaluator for schema. A nil logger selects the
// global logger.
func NewEvaluator(schema Schema, logger *zerolog.Logger) *Evaluator {
	l := log.With().Str("component", "filter").Logger()
	if logger != nil {
		l = logger.With().Str("component", "filter").Logger()
	}
	return &Evaluator{schema: schema, logger: l}
}

// Schema returns the evaluator's schema.
func (e *Evaluator) Schema() Schema {
	return e.schema
}

// verdict is the outcome of testing one item against one condition.
type verdict int

const (
	rejected verdict = iota
	accepted
	malformed
)

// Evaluate returns the items satisfying every constrained group and, when a
// search term is set, the search condition. The result preserves the
// relative order of items. names may be nil when nothing is resolved.
func (e *Evaluator) Evaluate(items []collection.Item, criteria Criteria, names EntityNames) []collection.Item {
	groups := e.activeGroups(criteria)
	term := criteria.NormalizedSearch()

	out := make([]collection.Item, 0, len(items))
	for _, it := range items {
		if it.ID == "" {
			e.logger.Warn().Msg("Skipping item without id")
			continue
		}

		v := e.matchGroups(it, groups, criteria)
		if v == accepted && term != "" {
			v = e.matchSearch(it, term, names)
		}

		if v == accepted {
			out = append(out, it)
		}
	}
	return out
}

func (e *Evaluator) activeGroups(criteria Criteria) []GroupSpec {
	names := criteria.ActiveGroups()
	groups := make([]GroupSpec, 0, len(names))
	for _, name := range names {
		spec, ok := e.schema.Group(name)
		if !ok {
			e.logger.Debug().Str("group", name).Msg("Ignoring unknown filter group")
			continue
		}
		groups = append(groups, spec)
	}
	return groups
}

func (e *Evaluator) matchGroups(it collection.Item, groups []GroupSpec, criteria Criteria) verdict {
	for _, g := range groups {
		v := e.matchGroup(it, g, criteria.Groups[g.Name])
		if v != accepted {
			return v
		}
	}
	return accepted
}

func (e *Evaluator) matchGroup(it collection.Item, g GroupSpec, values []string) verdict {
	field := g.FieldName()
	if _, present := it.Value(field); !present {
		return rejected
	}

	kind := g.Kind
	if kind == "" || kind == KindAuto {
		kind = KindFreeForm
		if it.IsList(field) {
			kind = KindMultiReference
		}
	}

	switch kind {
	case KindMultiReference:
		refs, ok := it.Refs(field)
		if !ok {
			e.warnMalformed(it, field, g.Name)
			return malformed
		}
		for _, ref := range refs {
			for _, want := range values {
				if ref == want {
					return accepted
				}
			}
		}
		return rejected

	case KindExact:
		text, ok := it.Text(field)
		if !ok {
			e.warnMalformed(it, field, g.Name)
			return malformed
		}
		for _, want := range values {
			if text == want {
				return accepted
			}
		}
		return rejected

	default:
		text, ok := it.Text(field)
		if !ok {
			e.warnMalformed(it, field, g.Name)
			return malformed
		}
		for _, want := range values {
			if strings.EqualFold(text, want) {
				return accepted
			}
		}
		return rejected
	}
}

// matchSearch reports whether any search field, or the resolved names of the
// search reference field, contains term. term is already case-folded.
func (e *Evaluator) matchSearch(it collection.Item, term string, names EntityNames) verdict {
	for _, field := range e.schema.SearchFields {
		if _, present := it.Value(field); !present {
			continue
		}
		text, ok := it.Text(field)
		if !ok {
			e.warnMalformed(it, field, "search")
			return malformed
		}
		if strings.Contains(strings.ToLower(text), term) {
			return accepted
		}
	}

	field := e.schema.SearchReferenceField
	if field == "" || names == nil {
		return rejected
	}
	if _, present := it.Value(field); !present {
		return rejected
	}
	refs, ok := it.Refs(field)
	if !ok {
		e.warnMalformed(it, field, "search")
		return malformed
	}
	if strings.Contains(strings.ToLower(names.Names(refs)), term) {
		return accepted
	}
	return rejected
}

func (e *Evaluator) warnMalformed(it collection.Item, field, group string) {
	e.logger.Warn().
		Str("item_id", it.ID).
		Str("field", field).
		Str("group", group).
		Msg("Skipping item with malformed field")
}
