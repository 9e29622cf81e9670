package mcp

import (
	"context"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driving"
)

// mockMatcher is a mock implementation of driving.Matcher.
type mockMatcher struct {
	result    *domain.MatchResult
	err       error
	lastQuery domain.Entity
	lastOpts  domain.MatchOptions
}

func (m *mockMatcher) Match(_ context.Context, query domain.Entity, opts domain.MatchOptions) (*domain.MatchResult, error) {
	m.lastQuery = query
	m.lastOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return &domain.MatchResult{Algorithm: opts.Algorithm}, nil
	}
	return m.result, nil
}

func (m *mockMatcher) MatchBatch(_ context.Context, _ []domain.MatchQuery, _ domain.MatchOptions) ([]domain.MatchResult, error) {
	return nil, m.err
}

func (m *mockMatcher) Algorithms() []domain.AlgorithmInfo {
	return []domain.AlgorithmInfo{{Name: "logic-v1", Default: true}}
}

func (m *mockMatcher) DefaultOptions() domain.MatchOptions {
	return domain.MatchOptions{Algorithm: "logic-v1", Limit: 5, Threshold: 0.7}
}

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	response  *domain.SearchResponse
	entity    *domain.Entity
	err       error
	lastQuery string
	lastOpts  domain.SearchOptions
}

func (m *mockSearchService) Search(_ context.Context, query string, opts domain.SearchOptions) (*domain.SearchResponse, error) {
	m.lastQuery = query
	m.lastOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	if m.response == nil {
		return &domain.SearchResponse{Results: []domain.SearchResult{}}, nil
	}
	return m.response, nil
}

func (m *mockSearchService) Entity(_ context.Context, id string) (*domain.Entity, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.entity == nil || (m.entity.ID != id && !contains(m.entity.Referents, id)) {
		return nil, domain.ErrNotFound
	}
	return m.entity, nil
}

func (m *mockSearchService) Adjacent(ctx context.Context, id string, _ domain.AdjacentOptions) (*domain.AdjacentResponse, error) {
	e, err := m.Entity(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.AdjacentResponse{Entity: *e, Adjacent: map[string]domain.AdjacentPage{}}, nil
}

// mockStatusService is a mock implementation of driving.StatusService.
type mockStatusService struct {
	status *domain.CatalogStatus
	err    error
}

func (m *mockStatusService) Live(context.Context) error  { return nil }
func (m *mockStatusService) Ready(context.Context) error { return m.err }

func (m *mockStatusService) Status(context.Context) (*domain.CatalogStatus, error) {
	return m.status, m.err
}

func (m *mockStatusService) AuditLog(context.Context, int) ([]domain.AuditEvent, error) {
	return nil, m.err
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Ensure mocks implement interfaces.
var (
	_ driving.Matcher       = (*mockMatcher)(nil)
	_ driving.SearchService = (*mockSearchService)(nil)
	_ driving.StatusService = (*mockStatusService)(nil)
)

func putin() *domain.Entity {
	return &domain.Entity{
		ID:         "Q7747",
		Schema:     "Person",
		Properties: map[string][]string{"name": {"Vladimir Putin"}, "birthDate": {"1952-10-07"}},
		Datasets:   []string{"sanctions"},
		Referents:  []string{"ofac-1234"},
	}
}
