package httpapi

import (
	"net/http"

	"github.com/custodia-labs/sercha-match/internal/core/ports/driving"
)

// Ports contains the services the HTTP API drives.
type Ports struct {
	Matcher driving.Matcher
	Search  driving.SearchService
	Status  driving.StatusService
	Indexer driving.IndexManager

	// Metrics serves /metrics when set.
	Metrics http.Handler

	// MCP is mounted at /mcp when set.
	MCP http.Handler
}

// Validate ensures all required ports are provided.
func (p *Ports) Validate() error {
	if p.Matcher == nil {
		return ErrMissingMatcher
	}
	if p.Search == nil {
		return ErrMissingSearchService
	}
	if p.Status == nil {
		return ErrMissingStatusService
	}
	if p.Indexer == nil {
		return ErrMissingIndexer
	}
	return nil
}
