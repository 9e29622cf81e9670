package domain

import (
	"sort"
	"strings"
)

// Entity is a typed record: a schema plus multi-valued properties.
// The same entity may be published by several datasets.
type Entity struct {
	// ID is stable across versions of the upstream data.
	ID string `json:"id"`

	// Schema names the entity type, e.g. "Person".
	Schema string `json:"schema"`

	// Caption is a display label.
	Caption string `json:"caption,omitempty"`

	// Properties maps property names to their values.
	Properties map[string][]string `json:"properties"`

	// Datasets lists the datasets publishing this entity.
	Datasets []string `json:"datasets,omitempty"`

	// Referents lists former IDs merged into this entity.
	Referents []string `json:"referents,omitempty"`

	// Target marks entities that are screening targets.
	Target bool `json:"target,omitempty"`

	FirstSeen  string `json:"first_seen,omitempty"`
	LastSeen   string `json:"last_seen,omitempty"`
	LastChange string `json:"last_change,omitempty"`
}

// Get returns the values of a property.
func (e *Entity) Get(prop string) []string {
	if e.Properties == nil {
		return nil
	}
	return e.Properties[prop]
}

// First returns the first value of a property or "".
func (e *Entity) First(prop string) string {
	vals := e.Get(prop)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// Add appends values to a property, skipping blanks and duplicates.
func (e *Entity) Add(prop string, values ...string) {
	if e.Properties == nil {
		e.Properties = make(map[string][]string)
	}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if !contains(e.Properties[prop], v) {
			e.Properties[prop] = append(e.Properties[prop], v)
		}
	}
}

// TypeValues returns every value whose property has the given type.
// Unknown properties are ignored. Values are sorted and de-duplicated.
func (e *Entity) TypeValues(m *Model, t PropertyType) []string {
	var out []string
	for prop, vals := range e.Properties {
		p, ok := m.Property(e.Schema, prop)
		if !ok || p.Type != t {
			continue
		}
		out = append(out, vals...)
	}
	return uniqueSorted(out)
}

// Names returns all name-typed values.
func (e *Entity) Names(m *Model) []string {
	return e.TypeValues(m, TypeName)
}

// HasMatchable reports whether the entity has at least one value in a
// matchable property.
func (e *Entity) HasMatchable(m *Model) bool {
	for prop, vals := range e.Properties {
		if len(vals) == 0 {
			continue
		}
		if p, ok := m.Property(e.Schema, prop); ok && p.Matchable {
			return true
		}
	}
	return false
}

// Merge folds other into e by unioning every multi-valued field.
// The result does not depend on merge order and merging the same
// entity twice is a no-op. Scalars keep the more specific or the
// lexically smaller value so they are order independent too.
func (e *Entity) Merge(m *Model, other *Entity) {
	if other == nil {
		return
	}
	if e.ID == "" {
		e.ID = other.ID
	}
	if e.Schema == "" {
		e.Schema = other.Schema
	} else if other.Schema != "" && other.Schema != e.Schema {
		if common, ok := m.Common(e.Schema, other.Schema); ok {
			e.Schema = common
		} else if other.Schema < e.Schema {
			e.Schema = other.Schema
		}
	}
	e.Caption = pickScalar(e.Caption, other.Caption)
	e.FirstSeen = minNonEmpty(e.FirstSeen, other.FirstSeen)
	e.LastSeen = maxString(e.LastSeen, other.LastSeen)
	e.LastChange = maxString(e.LastChange, other.LastChange)
	e.Target = e.Target || other.Target

	if e.Properties == nil {
		e.Properties = make(map[string][]string)
	}
	for prop, vals := range other.Properties {
		e.Properties[prop] = uniqueSorted(append(e.Properties[prop], vals...))
	}
	for prop, vals := range e.Properties {
		e.Properties[prop] = uniqueSorted(vals)
	}
	e.Datasets = uniqueSorted(append(e.Datasets, other.Datasets...))
	e.Referents = uniqueSorted(append(e.Referents, other.Referents...))
}

// Clone returns a deep copy.
func (e *Entity) Clone() *Entity {
	c := *e
	c.Properties = make(map[string][]string, len(e.Properties))
	for k, v := range e.Properties {
		c.Properties[k] = append([]string(nil), v...)
	}
	c.Datasets = append([]string(nil), e.Datasets...)
	c.Referents = append([]string(nil), e.Referents...)
	return &c
}

// InDatasets reports whether the entity belongs to any of the names.
// An empty filter matches everything.
func (e *Entity) InDatasets(names []string) bool {
	if len(names) == 0 {
		return true
	}
	for _, ds := range e.Datasets {
		if contains(names, ds) {
			return true
		}
	}
	return false
}

// EntityOpType is the kind of change carried by a delta line.
type EntityOpType string

// Entity operation types.
const (
	OpAdd    EntityOpType = "ADD"
	OpModify EntityOpType = "MOD"
	OpDelete EntityOpType = "DEL"
)

// EntityOp is one streamed change for a dataset. Full loads only
// produce OpAdd.
type EntityOp struct {
	Op     EntityOpType `json:"op"`
	Entity Entity       `json:"entity"`
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func uniqueSorted(vals []string) []string {
	if len(vals) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(vals))
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func pickScalar(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	case b < a:
		return b
	default:
		return a
	}
}

func minNonEmpty(a, b string) string {
	return pickScalar(a, b)
}

func maxString(a, b string) string {
	if b > a {
		return b
	}
	return a
}
