// Package mcp provides an MCP (Model Context Protocol) server adapter for sercha-match.
// It lets AI assistants screen entities against the index and browse the catalog.
package mcp

import "errors"

var (
	// ErrMissingMatcher is returned when the match service is not provided.
	ErrMissingMatcher = errors.New("mcp: match service is required")

	// ErrMissingSearchService is returned when the search service is not provided.
	ErrMissingSearchService = errors.New("mcp: search service is required")
)
