package driven

import (
	"context"
	"errors"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

// EntityFetcher retrieves dataset contents from upstream.
type EntityFetcher interface {
	// Plan decides between a full and a delta load. Delta is chosen only
	// when enabled, a base version exists and published deltas cover
	// the range from it to the newest version.
	Plan(ctx context.Context, ds domain.Dataset, baseVersion string, deltas bool) (domain.FetchPlan, error)

	// Fetch streams the operations of a plan.
	// Returns channels for operations and errors. On success a
	// FetchComplete is sent on the error channel before both close.
	Fetch(ctx context.Context, ds domain.Dataset, plan domain.FetchPlan) (<-chan domain.EntityOp, <-chan error)
}

// CatalogFetcher retrieves remote catalog index documents.
type CatalogFetcher interface {
	// FetchCatalog downloads and decodes a catalog index.
	FetchCatalog(ctx context.Context, url string) (*domain.CatalogIndex, error)

	// ResourceVersion returns a version token for a local resource,
	// or "" when the resource is not local.
	ResourceVersion(url string) string
}

// ManifestLoader reads the manifest document.
type ManifestLoader interface {
	// LoadManifest reads and validates the manifest at a path or URL.
	LoadManifest(ctx context.Context, location string) (*domain.Manifest, error)
}

// FetchComplete is sent on the error channel when a fetch completes successfully.
// Carries the version the dataset reached.
type FetchComplete struct {
	Version string
	Count   int
}

// Error implements the error interface.
// This allows FetchComplete to be sent on the error channel.
func (*FetchComplete) Error() string {
	return "fetch complete"
}

// IsFetchComplete checks if an error is actually a successful completion.
// Returns the FetchComplete and true if it is, nil and false otherwise.
func IsFetchComplete(err error) (*FetchComplete, bool) {
	var fc *FetchComplete
	if errors.As(err, &fc) {
		return fc, true
	}
	return nil, false
}
