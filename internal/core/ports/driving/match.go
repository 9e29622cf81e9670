package driving

import (
	"context"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

// Matcher scores example entities against the index.
type Matcher interface {
	// Match returns the ranked candidates for one query entity.
	Match(ctx context.Context, query domain.Entity, opts domain.MatchOptions) (*domain.MatchResult, error)

	// MatchBatch matches every query. A failing item sets its Err and
	// does not fail the batch. Results keep input order.
	MatchBatch(ctx context.Context, queries []domain.MatchQuery, opts domain.MatchOptions) ([]domain.MatchResult, error)

	// Algorithms describes the available scoring algorithms.
	Algorithms() []domain.AlgorithmInfo

	// DefaultOptions returns the configured algorithm, limit, threshold
	// and cutoff. Driving adapters start from these.
	DefaultOptions() domain.MatchOptions
}
