package mcp

import (
	"github.com/custodia-labs/sercha-match/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Matcher scores example entities.
	Matcher driving.Matcher

	// Search provides text search and entity lookup.
	Search driving.SearchService

	// Status reports catalog freshness. Optional.
	Status driving.StatusService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Matcher == nil {
		return ErrMissingMatcher
	}
	if p.Search == nil {
		return ErrMissingSearchService
	}
	return nil
}
