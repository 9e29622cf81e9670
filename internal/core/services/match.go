package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/semaphore"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-match/internal/logger"
	"github.com/custodia-labs/sercha-match/internal/scoring"
)

// Ensure MatchService implements the interface.
var _ driving.Matcher = (*MatchService)(nil)

// MatchService retrieves candidates through the alias and re-scores them.
type MatchService struct {
	reader   *generationReader
	backend  driven.IndexBackend
	model    *domain.Model
	metrics  driven.MetricsRecorder
	settings domain.MatchSettings
	maxBatch int

	// queries bounds concurrent backend queries across all callers.
	queries *semaphore.Weighted
	pool    *ants.Pool
}

// NewMatchService creates a match service.
// The metrics recorder is optional (can be nil).
func NewMatchService(
	backend driven.IndexBackend,
	model *domain.Model,
	metrics driven.MetricsRecorder,
	alias string,
	settings domain.MatchSettings,
	maxBatch int,
) (*MatchService, error) {
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}
	workers := max(settings.BatchWorkers, 1)
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &MatchService{
		reader:   newGenerationReader(backend, alias),
		backend:  backend,
		model:    model,
		metrics:  metrics,
		settings: settings,
		maxBatch: maxBatch,
		queries:  semaphore.NewWeighted(int64(max(settings.QueryConcurrency, 1))),
		pool:     pool,
	}, nil
}

// Close releases the worker pool.
func (s *MatchService) Close() {
	s.pool.Release()
}

// DefaultOptions returns the configured defaults for match queries.
func (s *MatchService) DefaultOptions() domain.MatchOptions {
	return domain.MatchOptions{
		Algorithm: s.settings.DefaultAlgorithm,
		Limit:     s.settings.Limit,
		Threshold: s.settings.Threshold,
		Cutoff:    s.settings.Cutoff,
	}
}

// Algorithms describes the registered scoring algorithms.
func (s *MatchService) Algorithms() []domain.AlgorithmInfo {
	var out []domain.AlgorithmInfo
	for _, a := range scoring.All() {
		info := scoring.Describe(a)
		info.Default = a.Name() == s.defaultAlgorithm()
		out = append(out, info)
	}
	return out
}

func (s *MatchService) defaultAlgorithm() string {
	if s.settings.DefaultAlgorithm != "" {
		return s.settings.DefaultAlgorithm
	}
	return scoring.DefaultAlgorithm
}

// Match ranks indexed entities against one query entity.
func (s *MatchService) Match(ctx context.Context, query domain.Entity, opts domain.MatchOptions) (*domain.MatchResult, error) {
	start := time.Now()
	result, err := s.match(ctx, query, opts)
	s.metrics.ObserveQuery("match", time.Since(start), err)
	return result, err
}

// MatchBatch matches every query on the worker pool. Item failures are
// reported in the item's Err; only an oversized batch fails as a whole.
func (s *MatchService) MatchBatch(ctx context.Context, queries []domain.MatchQuery, opts domain.MatchOptions) ([]domain.MatchResult, error) {
	if s.maxBatch > 0 && len(queries) > s.maxBatch {
		return nil, fmt.Errorf("%w: batch of %d exceeds the limit of %d", domain.ErrInvalidInput, len(queries), s.maxBatch)
	}

	results := make([]domain.MatchResult, len(queries))
	var wg sync.WaitGroup
	for i := range queries {
		q := queries[i]
		idx := i
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			res, err := s.Match(ctx, q.Entity, opts)
			if err != nil {
				results[idx] = domain.MatchResult{Key: q.Key, Query: q.Entity, Results: []domain.ScoredEntity{}, Err: err}
				return
			}
			res.Key = q.Key
			results[idx] = *res
		})
		if err != nil {
			wg.Done()
			results[idx] = domain.MatchResult{Key: q.Key, Query: q.Entity, Results: []domain.ScoredEntity{}, Err: fmt.Errorf("submit: %w", err)}
		}
	}
	wg.Wait()
	return results, nil
}

func (s *MatchService) match(ctx context.Context, query domain.Entity, opts domain.MatchOptions) (*domain.MatchResult, error) {
	if opts.Algorithm == "" {
		opts.Algorithm = s.defaultAlgorithm()
	}
	algo, err := scoring.Get(opts.Algorithm)
	if err != nil {
		return nil, err
	}
	if query.Schema == "" || s.model.Get(query.Schema) == nil {
		return nil, fmt.Errorf("%w: unknown schema %q", domain.ErrInvalidInput, query.Schema)
	}
	limit := s.limit(opts.Limit)

	result := &domain.MatchResult{
		Query:     query,
		Results:   []domain.ScoredEntity{},
		Algorithm: algo.Name(),
	}
	if !query.HasMatchable(s.model) {
		logger.Debug("query %s has no matchable properties", query.ID)
		return result, nil
	}

	gen, err := s.reader.current(ctx)
	if err != nil {
		return nil, err
	}
	datasets, err := gen.Scope(opts.Scope)
	if err != nil {
		return nil, err
	}

	bq := domain.BackendQuery{
		Should:   CandidateClauses(s.model, &query, opts.Fuzzy),
		Datasets: datasets,
		Schemata: s.schemata(query.Schema, opts.ExcludeSchemata),
		// An entity published by several datasets takes one slot.
		GroupByID: true,
		Size:      limit * max(s.settings.CandidateFactor, 1),
	}
	if len(bq.Should) == 0 || len(bq.Schemata) == 0 {
		return result, nil
	}

	res, err := s.query(ctx, gen.Name, bq)
	if err != nil {
		return nil, err
	}

	candidates, _ := mergeHits(s.model, res.Hits)
	scoreOpts := scoring.Options{Expensive: s.settings.ExpensiveComparators}
	for i := range candidates {
		c := &candidates[i]
		if slices.Contains(opts.ExcludeEntityIDs, c.ID) {
			continue
		}
		score, features := algo.Score(s.model, &query, c, scoreOpts)
		if score <= opts.Cutoff {
			continue
		}
		result.Results = append(result.Results, domain.ScoredEntity{
			Entity:   *c,
			Score:    score,
			Match:    score >= opts.Threshold,
			Features: features,
		})
	}

	slices.SortStableFunc(result.Results, func(a, b domain.ScoredEntity) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return strings.Compare(a.Entity.ID, b.Entity.ID)
		}
	})
	result.Total = len(result.Results)
	if len(result.Results) > limit {
		result.Results = result.Results[:limit]
	}
	return result, nil
}

// query runs a backend query under the shared concurrency ceiling.
// Callers over the ceiling wait for a slot.
func (s *MatchService) query(ctx context.Context, index string, bq domain.BackendQuery) (*domain.BackendResult, error) {
	if err := s.queries.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.queries.Release(1)

	res, err := s.backend.Query(ctx, index, bq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	return res, nil
}

func (s *MatchService) schemata(schema string, exclude []string) []string {
	var out []string
	for _, name := range s.model.MatchableSchemata(schema) {
		if !slices.Contains(exclude, name) {
			out = append(out, name)
		}
	}
	return out
}

func (s *MatchService) limit(requested int) int {
	switch {
	case requested <= 0:
		return max(s.settings.Limit, 1)
	case s.settings.MaxLimit > 0 && requested > s.settings.MaxLimit:
		return s.settings.MaxLimit
	default:
		return requested
	}
}
