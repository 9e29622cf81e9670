package httpapi

import (
	"context"
	"sync"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driving"
)

type mockMatcher struct {
	results  []domain.MatchResult
	err      error
	lastOpts domain.MatchOptions
	queries  []domain.MatchQuery
}

func (m *mockMatcher) Match(ctx context.Context, query domain.Entity, opts domain.MatchOptions) (*domain.MatchResult, error) {
	res, err := m.MatchBatch(ctx, []domain.MatchQuery{{Entity: query}}, opts)
	if err != nil {
		return nil, err
	}
	return &res[0], nil
}

func (m *mockMatcher) MatchBatch(_ context.Context, queries []domain.MatchQuery, opts domain.MatchOptions) ([]domain.MatchResult, error) {
	m.queries = queries
	m.lastOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	if m.results != nil {
		return m.results, nil
	}
	out := make([]domain.MatchResult, len(queries))
	for i, q := range queries {
		out[i] = domain.MatchResult{Key: q.Key, Query: q.Entity, Algorithm: opts.Algorithm}
	}
	return out, nil
}

func (m *mockMatcher) Algorithms() []domain.AlgorithmInfo {
	return []domain.AlgorithmInfo{
		{Name: "logic-v1", Default: true},
		{Name: "name-based"},
	}
}

func (m *mockMatcher) DefaultOptions() domain.MatchOptions {
	return domain.MatchOptions{Algorithm: "logic-v1", Limit: 5, Threshold: 0.7, Cutoff: 0.5}
}

type mockSearchService struct {
	response     *domain.SearchResponse
	entities     map[string]*domain.Entity
	adjacent     map[string]domain.AdjacentPage
	err          error
	lastText     string
	lastOpts     domain.SearchOptions
	lastAdjacent domain.AdjacentOptions
}

func (m *mockSearchService) Search(_ context.Context, query string, opts domain.SearchOptions) (*domain.SearchResponse, error) {
	m.lastText = query
	m.lastOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	if m.response == nil {
		return &domain.SearchResponse{Results: []domain.SearchResult{}, Limit: opts.Limit}, nil
	}
	return m.response, nil
}

func (m *mockSearchService) Entity(_ context.Context, id string) (*domain.Entity, error) {
	if m.err != nil {
		return nil, m.err
	}
	if e, ok := m.entities[id]; ok {
		return e, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockSearchService) Adjacent(ctx context.Context, id string, opts domain.AdjacentOptions) (*domain.AdjacentResponse, error) {
	m.lastAdjacent = opts
	e, err := m.Entity(ctx, id)
	if err != nil {
		return nil, err
	}
	if opts.Property != "" {
		if _, ok := m.adjacent[opts.Property]; !ok {
			return nil, domain.ErrNotFound
		}
	}
	return &domain.AdjacentResponse{Entity: *e, Adjacent: m.adjacent}, nil
}

type mockStatusService struct {
	readyErr error
	status   *domain.CatalogStatus
	err      error
}

func (m *mockStatusService) Live(context.Context) error { return nil }

func (m *mockStatusService) Ready(context.Context) error { return m.readyErr }

func (m *mockStatusService) Status(context.Context) (*domain.CatalogStatus, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.status, nil
}

func (m *mockStatusService) AuditLog(context.Context, int) ([]domain.AuditEvent, error) {
	return nil, nil
}

type mockIndexer struct {
	mu      sync.Mutex
	calls   int
	forced  bool
	outcome *domain.BuildOutcome
	err     error
	called  chan struct{}
}

func (m *mockIndexer) Update(_ context.Context, force bool) (*domain.BuildOutcome, error) {
	m.mu.Lock()
	m.calls++
	m.forced = force
	m.mu.Unlock()
	if m.called != nil {
		m.called <- struct{}{}
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.outcome == nil {
		return &domain.BuildOutcome{Status: domain.BuildUnchanged}, nil
	}
	return m.outcome, nil
}

func (m *mockIndexer) Check(context.Context) ([]domain.DatasetPlan, error) { return nil, nil }

func (m *mockIndexer) State() domain.IndexState { return domain.StateCurrent }

func (m *mockIndexer) Current(context.Context) (*domain.Generation, error) {
	return nil, domain.ErrIndexNotReady
}

func (m *mockIndexer) Cleanup(context.Context) error { return nil }

func (m *mockIndexer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var (
	_ driving.Matcher       = (*mockMatcher)(nil)
	_ driving.SearchService = (*mockSearchService)(nil)
	_ driving.StatusService = (*mockStatusService)(nil)
	_ driving.IndexManager  = (*mockIndexer)(nil)
)

// testPorts bundles the mocks behind a server.
type testPorts struct {
	matcher *mockMatcher
	search  *mockSearchService
	status  *mockStatusService
	indexer *mockIndexer
}

func newTestPorts() *testPorts {
	return &testPorts{
		matcher: &mockMatcher{},
		search:  &mockSearchService{},
		status:  &mockStatusService{},
		indexer: &mockIndexer{},
	}
}

func (p *testPorts) ports() *Ports {
	return &Ports{Matcher: p.matcher, Search: p.search, Status: p.status, Indexer: p.indexer}
}
