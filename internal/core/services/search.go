package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-match/internal/logger"
	"github.com/custodia-labs/sercha-match/internal/normalize"
)

// maxAdjacent caps the entities read for one lookup or adjacency
// direction.
const maxAdjacent = 500

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// SearchService provides free-text search over the aliased generation.
type SearchService struct {
	reader   *generationReader
	backend  driven.IndexBackend
	model    *domain.Model
	metrics  driven.MetricsRecorder
	limit    int
	maxLimit int
}

// NewSearchService creates a new search service.
// The metrics recorder is optional (can be nil).
func NewSearchService(
	backend driven.IndexBackend,
	model *domain.Model,
	metrics driven.MetricsRecorder,
	alias string,
	settings domain.MatchSettings,
) *SearchService {
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}
	return &SearchService{
		reader:   newGenerationReader(backend, alias),
		backend:  backend,
		model:    model,
		metrics:  metrics,
		limit:    max(settings.Limit, 10),
		maxLimit: settings.MaxLimit,
	}
}

// Search returns entities containing every query word. An empty query
// lists entities in ID order.
func (s *SearchService) Search(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SearchResponse, error) {
	start := time.Now()
	resp, err := s.search(ctx, query, opts)
	s.metrics.ObserveQuery("search", time.Since(start), err)
	return resp, err
}

func (s *SearchService) search(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SearchResponse, error) {
	logger.Section("Search Execution")
	logger.Debug("Query: %q scope=%q schema=%q", query, opts.Scope, opts.Schema)

	limit := s.pageSize(opts.Limit)
	if opts.Offset < 0 {
		return nil, fmt.Errorf("%w: negative offset", domain.ErrInvalidInput)
	}
	facets := opts.Facets
	if facets == nil {
		facets = domain.DefaultFacets
	}
	for _, f := range facets {
		if !slices.Contains(domain.FacetNames(), f) {
			return nil, fmt.Errorf("%w: unknown facet %q", domain.ErrInvalidInput, f)
		}
	}

	gen, err := s.reader.current(ctx)
	if err != nil {
		return nil, err
	}
	datasets, err := gen.Scope(opts.Scope)
	if err != nil {
		return nil, err
	}
	resp := &domain.SearchResponse{Results: []domain.SearchResult{}, Limit: limit, Offset: opts.Offset}
	if len(opts.Datasets) > 0 {
		datasets = narrow(datasets, opts.Datasets)
		if len(datasets) == 0 {
			return resp, nil
		}
	}

	bq := domain.BackendQuery{
		Datasets:  datasets,
		Topics:    opts.Topics,
		Facets:    facets,
		GroupByID: true,
		Size:      limit,
		Offset:    opts.Offset,
	}
	for _, c := range opts.Countries {
		bq.Countries = append(bq.Countries, normalize.Country(c))
	}
	if opts.Schema != "" {
		if s.model.Get(opts.Schema) == nil {
			return nil, fmt.Errorf("%w: unknown schema %q", domain.ErrInvalidInput, opts.Schema)
		}
		bq.Schemata = s.model.Descendants(opts.Schema)
	}
	if tokens := normalize.Unique(normalize.Tokens(query)); len(tokens) > 0 {
		bq.Must = []domain.Clause{{Field: domain.FieldText, Terms: tokens, All: true, Boost: 1}}
		bq.Should = []domain.Clause{{Field: domain.FieldNames, Terms: tokens, Boost: 2}}
	}

	res, err := s.backend.Query(ctx, gen.Name, bq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}

	entities, scores := mergeHits(s.model, res.Hits)
	resp.Total = res.Total
	resp.Facets = res.Facets
	for _, e := range entities {
		resp.Results = append(resp.Results, domain.SearchResult{Entity: e, Score: scores[e.ID]})
	}
	logger.Debug("Returning %d results (total %d)", len(resp.Results), resp.Total)
	return resp, nil
}

// Entity returns an entity merged across every dataset publishing it.
// Looking up a former ID returns the entity it was merged into.
func (s *SearchService) Entity(ctx context.Context, id string) (*domain.Entity, error) {
	gen, err := s.reader.current(ctx)
	if err != nil {
		return nil, err
	}
	return s.lookup(ctx, gen.Name, id, nil)
}

// Adjacent returns the entity with the entities its entity properties
// point at, keyed by property, and the entities pointing at it, keyed
// by the reverse name of the pointing property.
func (s *SearchService) Adjacent(ctx context.Context, id string, opts domain.AdjacentOptions) (*domain.AdjacentResponse, error) {
	limit := s.pageSize(opts.Limit)
	if opts.Offset < 0 {
		return nil, fmt.Errorf("%w: negative offset", domain.ErrInvalidInput)
	}
	gen, err := s.reader.current(ctx)
	if err != nil {
		return nil, err
	}
	datasets, err := gen.Scope(opts.Scope)
	if err != nil {
		return nil, err
	}
	entity, err := s.lookup(ctx, gen.Name, id, datasets)
	if err != nil {
		return nil, err
	}

	outbound := s.model.EntityProperties(entity.Schema)
	if opts.Property != "" {
		_, _, inbound := s.model.Reverse(opts.Property)
		if !inbound && !slices.ContainsFunc(outbound, func(p domain.Property) bool { return p.Name == opts.Property }) {
			return nil, fmt.Errorf("%w: property %q of %s", domain.ErrNotFound, opts.Property, entity.Schema)
		}
	}
	wanted := func(name string) bool { return opts.Property == "" || opts.Property == name }

	resp := &domain.AdjacentResponse{Entity: *entity, Adjacent: make(map[string]domain.AdjacentPage)}
	for _, p := range outbound {
		ids := normalize.Unique(entity.Get(p.Name))
		if !wanted(p.Name) || len(ids) == 0 {
			continue
		}
		page := ids[min(opts.Offset, len(ids)):min(opts.Offset+limit, len(ids))]
		linked := []domain.Entity{}
		if len(page) > 0 {
			if linked, err = s.fetch(ctx, gen.Name, domain.BackendQuery{IDs: page, Datasets: datasets}); err != nil {
				return nil, err
			}
		}
		resp.Adjacent[p.Name] = domain.AdjacentPage{Results: linked, Total: len(ids), Limit: limit, Offset: opts.Offset}
	}

	refs := append([]string{entity.ID}, entity.Referents...)
	pointing, err := s.fetch(ctx, gen.Name, domain.BackendQuery{References: refs, Datasets: datasets})
	if err != nil {
		return nil, err
	}
	inbound := make(map[string][]domain.Entity)
	for i := range pointing {
		e := &pointing[i]
		for _, p := range s.model.EntityProperties(e.Schema) {
			if p.Reverse == "" || !wanted(p.Reverse) || !slices.ContainsFunc(e.Get(p.Name), func(v string) bool {
				return slices.Contains(refs, v)
			}) {
				continue
			}
			inbound[p.Reverse] = append(inbound[p.Reverse], *e)
		}
	}
	for name, linked := range inbound {
		start := min(opts.Offset, len(linked))
		resp.Adjacent[name] = domain.AdjacentPage{
			Results: linked[start:min(start+limit, len(linked))],
			Total:   len(linked),
			Limit:   limit,
			Offset:  opts.Offset,
		}
	}
	return resp, nil
}

// lookup returns the entity with id, or the entity id was merged into.
func (s *SearchService) lookup(ctx context.Context, index, id string, datasets []string) (*domain.Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", domain.ErrInvalidInput)
	}
	entities, err := s.fetch(ctx, index, domain.BackendQuery{IDs: []string{id}, Datasets: datasets})
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("%w: entity %s", domain.ErrNotFound, id)
	}
	for i := range entities {
		if entities[i].ID == id {
			return &entities[i], nil
		}
	}
	return &entities[0], nil
}

// fetch returns up to maxAdjacent merged entities matching the filters,
// ordered by ID.
func (s *SearchService) fetch(ctx context.Context, index string, bq domain.BackendQuery) ([]domain.Entity, error) {
	bq.GroupByID = true
	bq.Size = maxAdjacent
	res, err := s.backend.Query(ctx, index, bq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	entities, _ := mergeHits(s.model, res.Hits)
	return entities, nil
}

func (s *SearchService) pageSize(limit int) int {
	if limit <= 0 {
		limit = s.limit
	}
	if s.maxLimit > 0 && limit > s.maxLimit {
		limit = s.maxLimit
	}
	return limit
}

// narrow keeps the requested datasets that lie in scope. A nil scope
// holds every dataset.
func narrow(scope, requested []string) []string {
	if scope == nil {
		return requested
	}
	var out []string
	for _, name := range requested {
		if slices.Contains(scope, name) {
			out = append(out, name)
		}
	}
	return out
}
