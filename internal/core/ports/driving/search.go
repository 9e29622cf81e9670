package driving

import (
	"context"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

// SearchService provides free-text search and entity lookup.
type SearchService interface {
	// Search runs a text query within a scope.
	Search(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SearchResponse, error)

	// Entity returns an entity by ID, merged across all datasets
	// publishing it. Former IDs resolve to the current entity.
	Entity(ctx context.Context, id string) (*domain.Entity, error)

	// Adjacent returns the entity and the entities linked to it through
	// entity properties, in either direction.
	Adjacent(ctx context.Context, id string, opts domain.AdjacentOptions) (*domain.AdjacentResponse, error)
}
