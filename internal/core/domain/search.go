package domain

// SearchOptions configures a free-text search.
type SearchOptions struct {
	// Scope is the dataset or collection to search in.
	Scope string

	// Schema filters results to this schema and its descendants.
	Schema string

	// Countries filters results to entities linked to one of these
	// countries.
	Countries []string

	// Topics filters results to entities tagged with one of these.
	Topics []string

	// Datasets narrows the scope to these of its datasets.
	Datasets []string

	// Facets names the facets to count. Nil selects the defaults.
	Facets []string

	// Limit is the maximum number of results.
	Limit int

	// Offset is the number of results to skip.
	Offset int
}

// DefaultFacets are counted when a search names none.
var DefaultFacets = []string{FacetCountries, FacetTopics, FacetDatasets}

// SearchResult represents a single search hit.
type SearchResult struct {
	// Entity is the matched entity, merged across datasets.
	Entity Entity `json:"entity"`

	// Score is the backend relevance score.
	Score float64 `json:"score"`
}

// SearchResponse is a page of search results.
type SearchResponse struct {
	Results []SearchResult          `json:"results"`
	Facets  map[string][]FacetValue `json:"facets,omitempty"`
	Total   int                     `json:"total"`
	Limit   int                     `json:"limit"`
	Offset  int                     `json:"offset"`
}

// AdjacentOptions configures an adjacency lookup.
type AdjacentOptions struct {
	// Scope is the dataset or collection to look in.
	Scope string

	// Property restricts the answer to one property. Empty returns all.
	Property string

	Limit  int
	Offset int
}

// AdjacentPage is the page of entities linked through one property.
type AdjacentPage struct {
	Results []Entity `json:"results"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

// AdjacentResponse holds an entity and the entities linked to it,
// keyed by property name. Inbound links use the reverse property.
type AdjacentResponse struct {
	Entity   Entity                  `json:"entity"`
	Adjacent map[string]AdjacentPage `json:"adjacent"`
}

// MatchOptions configures scoring of a match query.
type MatchOptions struct {
	// Scope is the dataset or collection to match against.
	Scope string

	// Algorithm names the scoring algorithm. Empty selects the default.
	Algorithm string

	// Limit is the number of results returned per query.
	Limit int

	// Threshold is the score at or above which a result is a match.
	Threshold float64

	// Cutoff drops results scoring at or below it.
	Cutoff float64

	// Fuzzy widens candidate retrieval to addresses and free text.
	Fuzzy bool

	// ExcludeSchemata removes schemata from the candidate set.
	ExcludeSchemata []string

	// ExcludeEntityIDs removes specific entities from the results.
	ExcludeEntityIDs []string
}

// MatchQuery is one entity of a batch.
type MatchQuery struct {
	// Key identifies the query in the response.
	Key string `json:"key"`

	// Entity is the example to match.
	Entity Entity `json:"entity"`
}

// ScoredEntity is a candidate with its aggregate score.
type ScoredEntity struct {
	Entity   Entity             `json:"entity"`
	Score    float64            `json:"score"`
	Match    bool               `json:"match"`
	Features map[string]float64 `json:"features"`
}

// MatchResult is the ranked answer for one query.
// Err is set instead of Results when the item failed.
type MatchResult struct {
	Key       string         `json:"key"`
	Query     Entity         `json:"query"`
	Results   []ScoredEntity `json:"results"`
	Total     int            `json:"total"`
	Algorithm string         `json:"algorithm"`
	Err       error          `json:"-"`
}

// AlgorithmInfo describes a scoring algorithm.
type AlgorithmInfo struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Features    map[string]float64 `json:"features"`
	Default     bool               `json:"default"`
}
