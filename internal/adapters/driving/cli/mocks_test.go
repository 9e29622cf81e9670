package cli

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driving"
)

// mockMatcher implements driving.Matcher for testing.
type mockMatcher struct {
	results   []domain.MatchResult
	err       error
	lastQuery []domain.MatchQuery
	lastOpts  domain.MatchOptions
}

func (m *mockMatcher) Match(ctx context.Context, query domain.Entity, opts domain.MatchOptions) (*domain.MatchResult, error) {
	results, err := m.MatchBatch(ctx, []domain.MatchQuery{{Key: query.ID, Entity: query}}, opts)
	if err != nil {
		return nil, err
	}
	return &results[0], nil
}

func (m *mockMatcher) MatchBatch(_ context.Context, queries []domain.MatchQuery, opts domain.MatchOptions) ([]domain.MatchResult, error) {
	m.lastQuery = queries
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
	return []domain.AlgorithmInfo{{Name: "logic-v1", Default: true}, {Name: "name-based"}}
}

func (m *mockMatcher) DefaultOptions() domain.MatchOptions {
	return domain.MatchOptions{Algorithm: "logic-v1", Limit: 5, Threshold: 0.7, Cutoff: 0.5}
}

// mockSearchService implements driving.SearchService for testing.
type mockSearchService struct {
	response *domain.SearchResponse
	err      error
	lastOpts domain.SearchOptions
}

func (m *mockSearchService) Search(_ context.Context, _ string, opts domain.SearchOptions) (*domain.SearchResponse, error) {
	m.lastOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	if m.response != nil {
		return m.response, nil
	}
	return &domain.SearchResponse{
		Results: []domain.SearchResult{{Entity: putin(), Score: 12.5}},
		Total:   1,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	}, nil
}

func (m *mockSearchService) Entity(_ context.Context, id string) (*domain.Entity, error) {
	e := putin()
	if id != e.ID {
		return nil, domain.ErrNotFound
	}
	return &e, nil
}

func (m *mockSearchService) Adjacent(_ context.Context, id string, _ domain.AdjacentOptions) (*domain.AdjacentResponse, error) {
	e, err := m.Entity(context.Background(), id)
	if err != nil {
		return nil, err
	}
	return &domain.AdjacentResponse{Entity: *e, Adjacent: map[string]domain.AdjacentPage{}}, nil
}

// mockStatusService implements driving.StatusService for testing.
type mockStatusService struct {
	status *domain.CatalogStatus
	events []domain.AuditEvent
	err    error
}

func (m *mockStatusService) Live(_ context.Context) error  { return nil }
func (m *mockStatusService) Ready(_ context.Context) error { return m.err }

func (m *mockStatusService) Status(_ context.Context) (*domain.CatalogStatus, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.status != nil {
		return m.status, nil
	}
	return &domain.CatalogStatus{
		Datasets: []domain.DatasetStatus{
			{Name: "sanctions", Kind: domain.KindCollection, Children: []string{"us_ofac_sdn"}},
			{Name: "us_ofac_sdn", Kind: domain.KindSource, Load: true, Version: "20240102", IndexVersion: "20240101", Entities: 120},
		},
		Current:     []string{},
		Outdated:    []string{"us_ofac_sdn"},
		IndexStale:  true,
		State:       domain.StateCurrent,
		Generation:  "sercha-entities-20240101",
		LastSuccess: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}, nil
}

func (m *mockStatusService) AuditLog(_ context.Context, limit int) ([]domain.AuditEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	if limit > 0 && len(m.events) > limit {
		return m.events[:limit], nil
	}
	return m.events, nil
}

// mockIndexManager implements driving.IndexManager for testing.
type mockIndexManager struct {
	mu        sync.Mutex
	outcome   *domain.BuildOutcome
	plans     []domain.DatasetPlan
	err       error
	lastForce bool
	updates   int
	cleanups  int
}

func (m *mockIndexManager) Update(_ context.Context, force bool) (*domain.BuildOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastForce = force
	m.updates++
	if m.err != nil {
		return nil, m.err
	}
	if m.outcome != nil {
		return m.outcome, nil
	}
	return &domain.BuildOutcome{Status: domain.BuildUnchanged}, nil
}

func (m *mockIndexManager) Check(_ context.Context) ([]domain.DatasetPlan, error) {
	return m.plans, m.err
}

func (m *mockIndexManager) State() domain.IndexState { return domain.StateCurrent }

func (m *mockIndexManager) Current(_ context.Context) (*domain.Generation, error) {
	return nil, domain.ErrIndexNotReady
}

func (m *mockIndexManager) Cleanup(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups++
	return nil
}

// mockCatalogService implements driving.CatalogService for testing.
type mockCatalogService struct {
	catalog *domain.ResolvedCatalog
	err     error
}

func (m *mockCatalogService) Resolve(_ context.Context) (*domain.ResolvedCatalog, error) {
	return m.catalog, m.err
}

func (m *mockCatalogService) Current(ctx context.Context) (*domain.ResolvedCatalog, error) {
	return m.Resolve(ctx)
}

func putin() domain.Entity {
	e := domain.Entity{ID: "Q7747", Schema: "Person", Caption: "Vladimir Putin", Datasets: []string{"us_ofac_sdn"}}
	e.Add("name", "Vladimir Putin")
	return e
}

// testServices holds the mocks installed by setupTestServices.
type testServices struct {
	matcher *mockMatcher
	search  *mockSearchService
	status  *mockStatusService
	indexer *mockIndexManager
	catalog *mockCatalogService
}

var _ driving.IndexManager = (*mockIndexManager)(nil)

// setupTestServices installs mocks and returns a cleanup that restores
// the previous services and resets every flag.
func setupTestServices() func() {
	cleanup, _ := setupTestServicesWith()
	return cleanup
}

func setupTestServicesWith() (func(), *testServices) {
	oldMatcher, oldSearch, oldStatus := matcher, searchService, statusService
	oldIndexer, oldCatalog, oldApp := indexManager, catalogService, application
	oldOpen := openApp

	ts := &testServices{
		matcher: &mockMatcher{},
		search:  &mockSearchService{},
		status:  &mockStatusService{},
		indexer: &mockIndexManager{},
		catalog: &mockCatalogService{catalog: domain.NewResolvedCatalog(nil, time.Now())},
	}
	matcher = ts.matcher
	searchService = ts.search
	statusService = ts.status
	indexManager = ts.indexer
	catalogService = ts.catalog

	return func() {
		matcher, searchService, statusService = oldMatcher, oldSearch, oldStatus
		indexManager, catalogService, application = oldIndexer, oldCatalog, oldApp
		openApp = oldOpen
		resetFlags(rootCmd)
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}, ts
}

// resetFlags restores flag defaults, cobra keeps them between runs.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}
