package driving

import (
	"context"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

// CatalogService resolves the manifest into the dataset catalog.
type CatalogService interface {
	// Resolve reads the manifest and remote catalogs and returns a fresh
	// catalog. The last good catalog is kept when resolution fails.
	Resolve(ctx context.Context) (*domain.ResolvedCatalog, error)

	// Current returns the last good catalog, resolving once if needed.
	Current(ctx context.Context) (*domain.ResolvedCatalog, error)
}
