package domain

import "sort"

// PropertyType is the value type of an entity property.
// The set is closed: every type has exactly one comparator.
type PropertyType string

// Property types.
const (
	TypeName       PropertyType = "name"
	TypeDate       PropertyType = "date"
	TypeCountry    PropertyType = "country"
	TypeIdentifier PropertyType = "identifier"
	TypeAddress    PropertyType = "address"
	TypeText       PropertyType = "text"

	// TypeEntity values are IDs of other entities.
	TypeEntity PropertyType = "entity"
)

// PropertyTypes lists every property type in comparison order.
func PropertyTypes() []PropertyType {
	return []PropertyType{TypeName, TypeIdentifier, TypeDate, TypeCountry, TypeAddress, TypeText, TypeEntity}
}

// Valid reports whether the type is part of the closed set.
func (t PropertyType) Valid() bool {
	switch t {
	case TypeName, TypeDate, TypeCountry, TypeIdentifier, TypeAddress, TypeText, TypeEntity:
		return true
	default:
		return false
	}
}

// Property describes one schema property.
type Property struct {
	// Name is the property key, e.g. "birthDate".
	Name string `json:"name"`

	// Type decides how values are normalised and compared.
	Type PropertyType `json:"type"`

	// Matchable marks properties used for candidate retrieval and scoring.
	Matchable bool `json:"matchable"`

	// Reverse names the property as seen from the referenced entity.
	// Only set on entity properties.
	Reverse string `json:"reverse,omitempty"`
}

// Schema is an entity type with inherited properties.
type Schema struct {
	// Name is the schema name, e.g. "Person".
	Name string `json:"name"`

	// Extends names the parent schemata.
	Extends []string `json:"extends,omitempty"`

	// Matchable schemata can be screened against.
	Matchable bool `json:"matchable"`

	// Properties are declared on this schema only.
	Properties []Property `json:"properties"`
}

// Model is the set of known schemata.
type Model struct {
	schemata map[string]*Schema
}

// NewModel builds a model from schema definitions.
func NewModel(schemata ...Schema) *Model {
	m := &Model{schemata: make(map[string]*Schema, len(schemata))}
	for i := range schemata {
		s := schemata[i]
		m.schemata[s.Name] = &s
	}
	return m
}

// Get returns a schema by name, or nil.
func (m *Model) Get(name string) *Schema {
	return m.schemata[name]
}

// Names returns all schema names sorted.
func (m *Model) Names() []string {
	names := make([]string, 0, len(m.schemata))
	for name := range m.schemata {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ancestors returns the schema and all its parents.
func (m *Model) Ancestors(name string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		s := m.schemata[n]
		if s == nil || seen[n] {
			return
		}
		seen[n] = true
		for _, parent := range s.Extends {
			walk(parent)
		}
	}
	walk(name)
	return sortedKeys(seen)
}

// IsA reports whether schema name is, or inherits from, parent.
func (m *Model) IsA(name, parent string) bool {
	for _, a := range m.Ancestors(name) {
		if a == parent {
			return true
		}
	}
	return false
}

// Property looks up a property on a schema or its parents.
func (m *Model) Property(schema, prop string) (Property, bool) {
	for _, name := range m.Ancestors(schema) {
		for _, p := range m.schemata[name].Properties {
			if p.Name == prop {
				return p, true
			}
		}
	}
	return Property{}, false
}

// Properties returns every property available on a schema.
func (m *Model) Properties(schema string) []Property {
	var props []Property
	for _, name := range m.Ancestors(schema) {
		props = append(props, m.schemata[name].Properties...)
	}
	sort.Slice(props, func(i, j int) bool { return props[i].Name < props[j].Name })
	return props
}

// EntityProperties returns the entity-typed properties of a schema.
func (m *Model) EntityProperties(schema string) []Property {
	var out []Property
	for _, p := range m.Properties(schema) {
		if p.Type == TypeEntity {
			out = append(out, p)
		}
	}
	return out
}

// Reverse finds the entity property of any schema whose reverse name
// is name.
func (m *Model) Reverse(name string) (schema string, prop Property, ok bool) {
	for _, s := range m.Names() {
		for _, p := range m.schemata[s].Properties {
			if p.Type == TypeEntity && p.Reverse == name {
				return s, p, true
			}
		}
	}
	return "", Property{}, false
}

// MatchableSchemata returns the matchable schemata a query of the given
// schema can be compared with: the schema's matchable ancestors and
// every matchable schema descending from it.
func (m *Model) MatchableSchemata(name string) []string {
	if m.schemata[name] == nil {
		return nil
	}
	out := make(map[string]bool)
	for _, a := range m.Ancestors(name) {
		if m.schemata[a].Matchable {
			out[a] = true
		}
	}
	for other, s := range m.schemata {
		if s.Matchable && m.IsA(other, name) {
			out[other] = true
		}
	}
	return sortedKeys(out)
}

// Descendants returns the schema and every schema inheriting from it.
func (m *Model) Descendants(name string) []string {
	out := make(map[string]bool)
	for other := range m.schemata {
		if m.IsA(other, name) {
			out[other] = true
		}
	}
	return sortedKeys(out)
}

// Common returns the more specific of two schemata when one descends
// from the other, and ok=false when they are unrelated.
func (m *Model) Common(a, b string) (string, bool) {
	switch {
	case a == b:
		return a, true
	case m.IsA(a, b):
		return a, true
	case m.IsA(b, a):
		return b, true
	default:
		return "", false
	}
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DefaultModel returns the built-in screening model.
func DefaultModel() *Model {
	return NewModel(
		Schema{
			Name: "Thing",
			Properties: []Property{
				{Name: "name", Type: TypeName, Matchable: true},
				{Name: "alias", Type: TypeName, Matchable: true},
				{Name: "previousName", Type: TypeName, Matchable: true},
				{Name: "weakAlias", Type: TypeName},
				{Name: "country", Type: TypeCountry, Matchable: true},
				{Name: "address", Type: TypeAddress, Matchable: true},
				{Name: "notes", Type: TypeText},
				{Name: "summary", Type: TypeText},
				{Name: "topics", Type: TypeText},
				{Name: "sourceUrl", Type: TypeText},
			},
		},
		Schema{
			Name:      "LegalEntity",
			Extends:   []string{"Thing"},
			Matchable: true,
			Properties: []Property{
				{Name: "idNumber", Type: TypeIdentifier, Matchable: true},
				{Name: "taxNumber", Type: TypeIdentifier, Matchable: true},
				{Name: "registrationNumber", Type: TypeIdentifier, Matchable: true},
				{Name: "email", Type: TypeIdentifier},
				{Name: "phone", Type: TypeIdentifier},
				{Name: "jurisdiction", Type: TypeCountry, Matchable: true},
				{Name: "mainCountry", Type: TypeCountry, Matchable: true},
				{Name: "incorporationDate", Type: TypeDate, Matchable: true},
				{Name: "dissolutionDate", Type: TypeDate},
			},
		},
		Schema{
			Name:      "Person",
			Extends:   []string{"LegalEntity"},
			Matchable: true,
			Properties: []Property{
				{Name: "firstName", Type: TypeName},
				{Name: "lastName", Type: TypeName},
				{Name: "birthDate", Type: TypeDate, Matchable: true},
				{Name: "deathDate", Type: TypeDate},
				{Name: "birthPlace", Type: TypeText},
				{Name: "nationality", Type: TypeCountry, Matchable: true},
				{Name: "citizenship", Type: TypeCountry, Matchable: true},
				{Name: "passportNumber", Type: TypeIdentifier, Matchable: true},
				{Name: "gender", Type: TypeText},
				{Name: "position", Type: TypeText},
			},
		},
		Schema{
			Name:      "Organization",
			Extends:   []string{"LegalEntity"},
			Matchable: true,
		},
		Schema{
			Name:      "Company",
			Extends:   []string{"Organization"},
			Matchable: true,
			Properties: []Property{
				{Name: "leiCode", Type: TypeIdentifier, Matchable: true},
				{Name: "swiftBic", Type: TypeIdentifier, Matchable: true},
				{Name: "innCode", Type: TypeIdentifier, Matchable: true},
				{Name: "ogrnCode", Type: TypeIdentifier, Matchable: true},
			},
		},
		Schema{
			Name:      "Vessel",
			Extends:   []string{"Thing"},
			Matchable: true,
			Properties: []Property{
				{Name: "imoNumber", Type: TypeIdentifier, Matchable: true},
				{Name: "mmsi", Type: TypeIdentifier, Matchable: true},
				{Name: "callSign", Type: TypeIdentifier, Matchable: true},
				{Name: "flag", Type: TypeCountry, Matchable: true},
				{Name: "buildDate", Type: TypeDate, Matchable: true},
			},
		},
		Schema{
			Name: "Interval",
			Properties: []Property{
				{Name: "startDate", Type: TypeDate},
				{Name: "endDate", Type: TypeDate},
				{Name: "summary", Type: TypeText},
				{Name: "sourceUrl", Type: TypeText},
			},
		},
		Schema{
			Name:    "Sanction",
			Extends: []string{"Interval"},
			Properties: []Property{
				{Name: "entity", Type: TypeEntity, Reverse: "sanctions"},
				{Name: "authority", Type: TypeText},
				{Name: "program", Type: TypeText},
				{Name: "reason", Type: TypeText},
				{Name: "listingDate", Type: TypeDate},
				{Name: "country", Type: TypeCountry},
			},
		},
		Schema{
			Name:    "Ownership",
			Extends: []string{"Interval"},
			Properties: []Property{
				{Name: "owner", Type: TypeEntity, Reverse: "ownershipOwner"},
				{Name: "asset", Type: TypeEntity, Reverse: "ownershipAsset"},
				{Name: "percentage", Type: TypeText},
			},
		},
		Schema{
			Name:    "Directorship",
			Extends: []string{"Interval"},
			Properties: []Property{
				{Name: "director", Type: TypeEntity, Reverse: "directorshipDirector"},
				{Name: "organization", Type: TypeEntity, Reverse: "directorshipOrganization"},
				{Name: "role", Type: TypeText},
			},
		},
		Schema{
			Name:    "Family",
			Extends: []string{"Interval"},
			Properties: []Property{
				{Name: "person", Type: TypeEntity, Reverse: "familyPerson"},
				{Name: "relative", Type: TypeEntity, Reverse: "familyRelative"},
				{Name: "relationship", Type: TypeText},
			},
		},
		Schema{
			Name:    "Associate",
			Extends: []string{"Interval"},
			Properties: []Property{
				{Name: "person", Type: TypeEntity, Reverse: "associates"},
				{Name: "associate", Type: TypeEntity, Reverse: "associations"},
				{Name: "relationship", Type: TypeText},
			},
		},
		Schema{
			Name:      "Airplane",
			Extends:   []string{"Thing"},
			Matchable: true,
			Properties: []Property{
				{Name: "registrationNumber", Type: TypeIdentifier, Matchable: true},
				{Name: "serialNumber", Type: TypeIdentifier, Matchable: true},
				{Name: "buildDate", Type: TypeDate, Matchable: true},
			},
		},
	)
}
