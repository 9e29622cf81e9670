// Package httpapi serves the screening HTTP API: matching, search, entity
// lookup, health and freshness reports, and the admin update trigger.
package httpapi

import "errors"

// Sentinel errors for server construction.
var (
	// ErrMissingMatcher indicates the Matcher port was not provided.
	ErrMissingMatcher = errors.New("httpapi: matcher is required")

	// ErrMissingSearchService indicates the SearchService port was not provided.
	ErrMissingSearchService = errors.New("httpapi: search service is required")

	// ErrMissingStatusService indicates the StatusService port was not provided.
	ErrMissingStatusService = errors.New("httpapi: status service is required")

	// ErrMissingIndexer indicates the IndexManager port was not provided.
	ErrMissingIndexer = errors.New("httpapi: index manager is required")
)
