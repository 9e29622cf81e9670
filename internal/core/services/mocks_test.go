package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driving"
)

// --- Mock implementations shared by the service tests ---

// mockFetcher serves entities per dataset. A dataset listed in fail
// returns that error; gate, when set, blocks every fetch until closed.
type mockFetcher struct {
	mu       sync.Mutex
	entities map[string][]domain.Entity
	deltas   map[string][]domain.EntityOp
	fail     map[string]error
	gate     chan struct{}
	calls    map[string]int
	fetches  atomic.Int32
	planErr  error
	truncate bool
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{
		entities: make(map[string][]domain.Entity),
		deltas:   make(map[string][]domain.EntityOp),
		fail:     make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (m *mockFetcher) set(dataset string, entities ...domain.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[dataset] = entities
}

func (m *mockFetcher) failWith(dataset string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, dataset)
		return
	}
	m.fail[dataset] = err
}

func (m *mockFetcher) callCount(dataset string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[dataset]
}

func (m *mockFetcher) Plan(_ context.Context, ds domain.Dataset, base string, deltas bool) (domain.FetchPlan, error) {
	if m.planErr != nil {
		return domain.FetchPlan{}, m.planErr
	}
	m.mu.Lock()
	_, hasDelta := m.deltas[ds.Name]
	m.mu.Unlock()
	if deltas && base != "" && hasDelta {
		return domain.FetchPlan{
			Mode:          domain.FetchDelta,
			BaseVersion:   base,
			TargetVersion: ds.Version,
			Deltas:        []domain.DeltaRef{{Version: ds.Version, URL: ds.DeltaURL}},
		}, nil
	}
	return domain.FetchPlan{Mode: domain.FetchFull, TargetVersion: ds.Version}, nil
}

func (m *mockFetcher) Fetch(ctx context.Context, ds domain.Dataset, plan domain.FetchPlan) (<-chan domain.EntityOp, <-chan error) {
	m.fetches.Add(1)
	m.mu.Lock()
	m.calls[ds.Name]++
	failErr := m.fail[ds.Name]
	var ops []domain.EntityOp
	if plan.Mode == domain.FetchDelta {
		ops = m.deltas[ds.Name]
	} else {
		for _, e := range m.entities[ds.Name] {
			ops = append(ops, domain.EntityOp{Op: domain.OpAdd, Entity: *e.Clone()})
		}
	}
	gate := m.gate
	truncate := m.truncate
	m.mu.Unlock()

	opsCh := make(chan domain.EntityOp)
	errsCh := make(chan error, 1)
	go func() {
		defer close(opsCh)
		defer close(errsCh)
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				errsCh <- ctx.Err()
				return
			}
		}
		if failErr != nil {
			errsCh <- failErr
			return
		}
		for _, op := range ops {
			select {
			case opsCh <- op:
			case <-ctx.Done():
				errsCh <- ctx.Err()
				return
			}
		}
		if !truncate {
			errsCh <- &driven.FetchComplete{Version: plan.TargetVersion, Count: len(ops)}
		}
	}()
	return opsCh, errsCh
}

// mockCatalog is a fixed driving.CatalogService.
type mockCatalog struct {
	mu      sync.Mutex
	catalog *domain.ResolvedCatalog
	err     error
}

func (m *mockCatalog) setDatasets(datasets ...domain.Dataset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalog = domain.NewResolvedCatalog(datasets, time.Now())
}

func (m *mockCatalog) Resolve(_ context.Context) (*domain.ResolvedCatalog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.catalog, nil
}

func (m *mockCatalog) Current(ctx context.Context) (*domain.ResolvedCatalog, error) {
	return m.Resolve(ctx)
}

// mockManifestLoader returns a fixed manifest.
type mockManifestLoader struct {
	manifest *domain.Manifest
	err      error
}

func (m *mockManifestLoader) LoadManifest(_ context.Context, location string) (*domain.Manifest, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := *m.manifest
	out.Location = location
	return &out, nil
}

// mockCatalogFetcher serves catalog documents by URL.
type mockCatalogFetcher struct {
	catalogs map[string]*domain.CatalogIndex
	versions map[string]string
}

func (m *mockCatalogFetcher) FetchCatalog(_ context.Context, url string) (*domain.CatalogIndex, error) {
	idx, ok := m.catalogs[url]
	if !ok {
		return nil, &domain.FetchError{URL: url, StatusCode: 404}
	}
	return idx, nil
}

func (m *mockCatalogFetcher) ResourceVersion(url string) string {
	return m.versions[url]
}

// mockIndexer is a scripted driving.IndexManager.
type mockIndexer struct {
	mu        sync.Mutex
	updates   int
	outcome   *domain.BuildOutcome
	err       error
	current   *domain.Generation
	state     domain.IndexState
	updateFor time.Duration
}

func (m *mockIndexer) Update(ctx context.Context, _ bool) (*domain.BuildOutcome, error) {
	m.mu.Lock()
	m.updates++
	wait := m.updateFor
	m.mu.Unlock()
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.outcome, m.err
}

func (m *mockIndexer) updateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}

func (m *mockIndexer) Check(context.Context) ([]domain.DatasetPlan, error) {
	if m.outcome == nil {
		return nil, m.err
	}
	return m.outcome.Plans, m.err
}

func (m *mockIndexer) State() domain.IndexState {
	if m.state == "" {
		return domain.StateCurrent
	}
	return m.state
}

func (m *mockIndexer) Current(context.Context) (*domain.Generation, error) {
	if m.current == nil {
		return nil, domain.ErrIndexNotReady
	}
	return m.current, nil
}

func (m *mockIndexer) Cleanup(context.Context) error {
	return nil
}

// recordingMetrics counts observations.
type recordingMetrics struct {
	mu       sync.Mutex
	builds   []domain.BuildStatus
	datasets map[string]error
	queries  map[string]int
	states   []domain.IndexState
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{datasets: make(map[string]error), queries: make(map[string]int)}
}

func (r *recordingMetrics) ObserveBuild(status domain.BuildStatus, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builds = append(r.builds, status)
}

func (r *recordingMetrics) ObserveDataset(dataset string, _ domain.DatasetAction, _ int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.datasets[dataset] = err
}

func (r *recordingMetrics) SetIndexState(state domain.IndexState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recordingMetrics) ObserveQuery(kind string, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries[kind]++
}

// failingBackend wraps a backend and fails queries.
type failingBackend struct {
	driven.IndexBackend
	queryErr error
}

func (f *failingBackend) Query(ctx context.Context, index string, q domain.BackendQuery) (*domain.BackendResult, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.IndexBackend.Query(ctx, index, q)
}

var errUpstream = errors.New("upstream exploded")

// Ensure mocks implement interfaces
var (
	_ driven.EntityFetcher   = (*mockFetcher)(nil)
	_ driven.ManifestLoader  = (*mockManifestLoader)(nil)
	_ driven.CatalogFetcher  = (*mockCatalogFetcher)(nil)
	_ driven.MetricsRecorder = (*recordingMetrics)(nil)
	_ driving.CatalogService = (*mockCatalog)(nil)
	_ driving.IndexManager   = (*mockIndexer)(nil)
)

func loadable(name, version string) domain.Dataset {
	return domain.Dataset{
		Name:        name,
		Kind:        domain.KindSource,
		Version:     version,
		EntitiesURL: "https://data.example.org/" + name + "/entities.ftm.json",
		Format:      domain.FormatNDJSON,
	}
}

func collection(name string, children ...string) domain.Dataset {
	return domain.Dataset{Name: name, Kind: domain.KindCollection, Version: "1", Children: children}
}

func person(id, name string, extra ...string) domain.Entity {
	e := domain.Entity{ID: id, Schema: "Person", Properties: map[string][]string{"name": {name}}}
	for i := 0; i+1 < len(extra); i += 2 {
		e.Add(extra[i], extra[i+1])
	}
	return e
}
