package driving

import (
	"context"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

// IndexManager keeps the aliased index in line with the catalog.
type IndexManager interface {
	// Update checks upstream versions and, when anything changed or
	// force is set, builds and promotes a new generation. Concurrent
	// calls share one build and receive the same outcome.
	Update(ctx context.Context, force bool) (*domain.BuildOutcome, error)

	// Check computes the per-dataset plan without building.
	Check(ctx context.Context) ([]domain.DatasetPlan, error)

	// State returns the current lifecycle state.
	State() domain.IndexState

	// Current returns the metadata of the generation the alias points to.
	// Returns domain.ErrIndexNotReady if there is none.
	Current(ctx context.Context) (*domain.Generation, error)

	// Cleanup removes incomplete generations left over by a crash.
	Cleanup(ctx context.Context) error
}
