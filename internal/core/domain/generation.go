package domain

import (
	"fmt"
	"sort"
	"time"
)

// IndexState is the lifecycle state of the logical index.
type IndexState string

// Index lifecycle states.
const (
	StateCurrent   IndexState = "current"
	StateChecking  IndexState = "checking"
	StateBuilding  IndexState = "building"
	StatePromoting IndexState = "promoting"
	StateFailed    IndexState = "failed"
)

// Generation is the metadata of one physical index built under the alias.
// It is stored in the backend next to the data so it survives restarts.
type Generation struct {
	// Name is the physical index name.
	Name string `json:"name"`

	// Alias is the logical index the generation was built for.
	Alias string `json:"alias"`

	// CreatedAt is when the build started.
	CreatedAt time.Time `json:"created_at"`

	// Versions maps each indexed dataset to the version it was built from.
	Versions map[string]string `json:"versions"`

	// Counts maps each dataset to its number of stored entities.
	Counts map[string]int `json:"counts,omitempty"`

	// Scopes maps every catalog dataset to the dataset names whose
	// entities it covers, itself included. Queries resolve scopes from
	// here so they never depend on the live catalog.
	Scopes map[string][]string `json:"scopes,omitempty"`

	// Complete is set once every dataset was written and verified.
	Complete bool `json:"complete"`
}

// DatasetNames returns the indexed dataset names, sorted.
func (g *Generation) DatasetNames() []string {
	names := make([]string, 0, len(g.Versions))
	for name := range g.Versions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Version returns the indexed version of a dataset.
func (g *Generation) Version(dataset string) string {
	if g == nil || g.Versions == nil {
		return ""
	}
	return g.Versions[dataset]
}

// Scope returns the dataset names covered by a scope.
// An empty scope covers everything and returns nil.
func (g *Generation) Scope(name string) ([]string, error) {
	if name == "" {
		return nil, nil
	}
	names, ok := g.Scopes[name]
	if !ok {
		return nil, fmt.Errorf("%w: dataset %q", ErrNotFound, name)
	}
	return names, nil
}

// IndexOpType is a bulk write action.
type IndexOpType int

const (
	// IndexMerge unions the entity into any stored entity with the
	// same dataset and ID.
	IndexMerge IndexOpType = iota

	// IndexReplace overwrites the stored entity.
	IndexReplace

	// IndexDelete removes the stored entity.
	IndexDelete
)

// IndexDocument is an entity prepared for storage: the entity itself
// plus the normalised values used for retrieval.
type IndexDocument struct {
	// Dataset is the loaded dataset the entity was read from.
	Dataset string

	// Entity is the stored record.
	Entity Entity

	// Fields holds retrieval terms keyed by field name.
	Fields map[string][]string

	// Topics are the entity's topic tags, used for filters and facets.
	Topics []string

	// References are the IDs the entity points at through entity
	// properties.
	References []string
}

// IndexOp is one bulk write.
type IndexOp struct {
	Type     IndexOpType
	Document IndexDocument
}

// Retrieval fields written for every document.
const (
	FieldNames        = "names"
	FieldNameKeys     = "name_keys"
	FieldNameParts    = "name_parts"
	FieldNamePhonetic = "name_phonetic"
	FieldIdentifiers  = "identifiers"
	FieldCountries    = "countries"
	FieldDates        = "dates"
	FieldAddresses    = "addresses"
	FieldText         = "text"
)

// IndexFields lists the retrieval fields in storage order.
func IndexFields() []string {
	return []string{
		FieldNames, FieldNameKeys, FieldNameParts, FieldNamePhonetic,
		FieldIdentifiers, FieldCountries, FieldDates, FieldAddresses, FieldText,
	}
}

// Clause matches documents having any (or all) of the terms in a field.
type Clause struct {
	Field  string
	Terms  []string
	Boost  float64
	Prefix bool
	All    bool
}

// BackendQuery is the backend-neutral candidate query.
type BackendQuery struct {
	// Should: when Must is empty at least one clause must match,
	// otherwise they only add to the score. Both empty matches every
	// document.
	Should []Clause

	// Must: every clause must match.
	Must []Clause

	// Datasets restricts results to entities tagged with one of these.
	Datasets []string

	// Schemata restricts results to these schemata.
	Schemata []string

	// IDs restricts results to entities with one of these IDs or
	// referents.
	IDs []string

	// Countries restricts results to entities with one of these
	// normalised country codes.
	Countries []string

	// Topics restricts results to entities tagged with one of these.
	Topics []string

	// References restricts results to entities pointing at one of
	// these IDs.
	References []string

	// Facets lists the facets to count over every matching entity.
	Facets []string

	// GroupByID pages and counts distinct entity IDs instead of stored
	// rows. Every row of a returned ID is included.
	GroupByID bool

	Size   int
	Offset int
}

// Facet names.
const (
	FacetDatasets  = "datasets"
	FacetSchema    = "schema"
	FacetCountries = "countries"
	FacetTopics    = "topics"
)

// FacetNames lists the supported facets.
func FacetNames() []string {
	return []string{FacetCountries, FacetDatasets, FacetSchema, FacetTopics}
}

// FacetValue is one bucket of a facet: a value and the number of
// distinct matching entities having it.
type FacetValue struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// BackendHit is one stored entity returned by the backend.
type BackendHit struct {
	Dataset string
	Entity  Entity
	Score   float64
}

// BackendResult is a page of hits.
type BackendResult struct {
	Hits  []BackendHit
	Total int

	// Facets holds the requested facet buckets, ordered by count
	// descending then name.
	Facets map[string][]FacetValue
}

// AuditEvent types.
const (
	AuditReindexStarted   = "reindex_started"
	AuditReindexCompleted = "reindex_completed"
	AuditReindexFailed    = "reindex_failed"
	AuditAliasRollover    = "alias_rollover"
	AuditIndexDeleted     = "index_deleted"
)

// AuditEvent records an index lifecycle event.
type AuditEvent struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Index     string    `json:"index,omitempty"`
	Message   string    `json:"message,omitempty"`
}
