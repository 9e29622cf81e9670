package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-match/internal/logger"
)

// Ensure IndexManager implements the interface.
var _ driving.IndexManager = (*IndexManager)(nil)

// IndexManager owns the generations of one logical index: it decides
// when the aliased generation is stale, builds replacements and
// promotes them by repointing the alias.
type IndexManager struct {
	backend  driven.IndexBackend
	fetcher  driven.EntityFetcher
	catalog  driving.CatalogService
	tracker  *Tracker
	audit    driven.AuditLog
	metrics  driven.MetricsRecorder
	model    *domain.Model
	settings domain.IndexSettings

	flight singleflight.Group
	now    func() time.Time

	mu    sync.RWMutex
	state domain.IndexState
}

// NewIndexManager creates an index manager.
// The audit log and metrics recorder are optional (can be nil).
func NewIndexManager(
	backend driven.IndexBackend,
	fetcher driven.EntityFetcher,
	catalog driving.CatalogService,
	tracker *Tracker,
	audit driven.AuditLog,
	metrics driven.MetricsRecorder,
	model *domain.Model,
	settings domain.IndexSettings,
) *IndexManager {
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}
	return &IndexManager{
		backend:  backend,
		fetcher:  fetcher,
		catalog:  catalog,
		tracker:  tracker,
		audit:    audit,
		metrics:  metrics,
		model:    model,
		settings: settings,
		now:      time.Now,
		state:    domain.StateCurrent,
	}
}

// State returns the current lifecycle state.
func (m *IndexManager) State() domain.IndexState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *IndexManager) setState(state domain.IndexState) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
	m.metrics.SetIndexState(state)
}

// Current returns the metadata of the aliased generation.
func (m *IndexManager) Current(ctx context.Context) (*domain.Generation, error) {
	name, err := m.backend.GetAlias(ctx, m.settings.Alias)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: alias %s is not set", domain.ErrIndexNotReady, m.settings.Alias)
	}
	if err != nil {
		return nil, fmt.Errorf("get alias: %w", err)
	}
	gen, err := m.backend.GetGeneration(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: generation %s has no metadata", domain.ErrIndexNotReady, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get generation: %w", err)
	}
	return gen, nil
}

// Check computes the per-dataset plan against the aliased generation.
func (m *IndexManager) Check(ctx context.Context) ([]domain.DatasetPlan, error) {
	catalog, err := m.catalog.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	current, err := m.Current(ctx)
	if err != nil && !errors.Is(err, domain.ErrIndexNotReady) {
		return nil, err
	}
	return m.plan(catalog, current, false), nil
}

// Update brings the index in line with the catalog. Only one update
// runs at a time; concurrent callers wait for the running one and get
// its outcome. The build itself is not bound to the caller's context,
// so a caller giving up does not abort it.
func (m *IndexManager) Update(ctx context.Context, force bool) (*domain.BuildOutcome, error) {
	buildCtx := context.WithoutCancel(ctx)
	ch := m.flight.DoChan(m.settings.Alias, func() (any, error) {
		return m.update(buildCtx, force)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			logger.Debug("joined in-flight update of %s", m.settings.Alias)
		}
		outcome, _ := res.Val.(*domain.BuildOutcome)
		return outcome, res.Err
	}
}

// Cleanup deletes generations that never completed and are not aliased.
func (m *IndexManager) Cleanup(ctx context.Context) error {
	target, err := m.aliasTarget(ctx)
	if err != nil {
		return err
	}
	names, err := m.backend.ListIndices(ctx, m.settings.Alias+"-")
	if err != nil {
		return fmt.Errorf("list indices: %w", err)
	}
	for _, name := range names {
		if name == target {
			continue
		}
		gen, err := m.backend.GetGeneration(ctx, name)
		if err == nil && gen.Complete {
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("get generation %s: %w", name, err)
		}
		logger.Info("deleting incomplete generation %s", name)
		if err := m.deleteIndex(ctx, name, "incomplete generation"); err != nil {
			return err
		}
	}
	return nil
}

func (m *IndexManager) update(ctx context.Context, force bool) (*domain.BuildOutcome, error) {
	logger.Section("Index Update")
	outcome := &domain.BuildOutcome{StartedAt: m.now()}
	m.setState(domain.StateChecking)
	defer func() {
		outcome.EndedAt = m.now()
		if m.State() != domain.StateFailed {
			m.setState(domain.StateCurrent)
		}
		m.metrics.ObserveBuild(outcome.Status, outcome.EndedAt.Sub(outcome.StartedAt))
	}()

	catalog, err := m.catalog.Resolve(ctx)
	if err != nil {
		logger.Warn("catalog resolution failed, keeping current index: %v", err)
		m.tracker.RecordError(err)
		outcome.Status = domain.BuildFailed
		outcome.Error = err.Error()
		return nil, err
	}
	m.tracker.RecordCheck()

	current, err := m.Current(ctx)
	if err != nil && !errors.Is(err, domain.ErrIndexNotReady) {
		m.tracker.RecordError(err)
		outcome.Status = domain.BuildFailed
		outcome.Error = err.Error()
		return nil, err
	}

	outcome.Plans = m.plan(catalog, current, force)
	scopes := CatalogScopes(catalog)
	if current != nil && !changed(outcome.Plans) {
		if !sameScopes(current.Scopes, scopes) {
			// Collections changed without any dataset version moving:
			// a copy-only generation carries the new scope table.
			logger.Info("collections of %s changed, rebuilding scopes", m.settings.Alias)
			return m.buildAndPromote(ctx, catalog, current, outcome)
		}
		logger.Info("index %s is current (%s)", m.settings.Alias, current.Name)
		outcome.Status = domain.BuildUnchanged
		outcome.Generation = current.Name
		m.tracker.RecordOutcome(outcome)
		return outcome, nil
	}

	return m.buildAndPromote(ctx, catalog, current, outcome)
}

// buildAndPromote runs the Building and Promoting states. A failure
// passes through Failed and settles back on Current when an older
// generation is still aliased.
func (m *IndexManager) buildAndPromote(
	ctx context.Context,
	catalog *domain.ResolvedCatalog,
	current *domain.Generation,
	outcome *domain.BuildOutcome,
) (*domain.BuildOutcome, error) {
	m.setState(domain.StateBuilding)
	gen, err := m.build(ctx, catalog, current, outcome)
	if err != nil {
		logger.Error("index build failed: %v", err)
		m.fail(ctx, outcome, current, outcome.Generation, err)
		return outcome, err
	}

	m.setState(domain.StatePromoting)
	if err := m.promote(ctx, gen, current); err != nil {
		m.discard(ctx, gen.Name)
		m.fail(ctx, outcome, current, gen.Name, err)
		return outcome, err
	}

	outcome.Status = domain.BuildPromoted
	m.record(ctx, domain.AuditReindexCompleted, gen.Name, fmt.Sprintf("%d datasets", len(gen.Versions)))
	m.tracker.RecordOutcome(outcome)
	return outcome, nil
}

// fail records a failed build. The state stays Failed only when no
// generation serves queries; otherwise the old one is still live and
// the manager is back to Current.
func (m *IndexManager) fail(ctx context.Context, outcome *domain.BuildOutcome, current *domain.Generation, index string, err error) {
	m.setState(domain.StateFailed)
	outcome.Status = domain.BuildFailed
	outcome.Error = err.Error()
	m.record(ctx, domain.AuditReindexFailed, index, err.Error())
	m.tracker.RecordOutcome(outcome)
	if current != nil {
		m.setState(domain.StateCurrent)
	}
}

// sameScopes reports whether two scope tables name the same datasets
// with the same members.
func sameScopes(a, b map[string][]string) bool {
	return maps.EqualFunc(a, b, func(x, y []string) bool { return slices.Equal(x, y) })
}

// plan decides what to do with each dataset.
func (m *IndexManager) plan(catalog *domain.ResolvedCatalog, current *domain.Generation, force bool) []domain.DatasetPlan {
	var plans []domain.DatasetPlan
	loadable := make(map[string]bool)
	for _, ds := range catalog.Loadable() {
		loadable[ds.Name] = true
		p := domain.DatasetPlan{
			Dataset:       ds.Name,
			IndexVersion:  current.Version(ds.Name),
			TargetVersion: ds.Version,
		}
		switch indexed := current != nil && hasDataset(current, ds.Name); {
		case !indexed || force:
			p.Action = domain.ActionFull
		case p.IndexVersion == ds.Version:
			p.Action = domain.ActionKeep
		case m.settings.DeltaUpdates && ds.DeltaURL != "":
			p.Action = domain.ActionDelta
		default:
			p.Action = domain.ActionFull
		}
		plans = append(plans, p)
	}
	if current != nil {
		for _, name := range current.DatasetNames() {
			if !loadable[name] {
				plans = append(plans, domain.DatasetPlan{
					Dataset:      name,
					Action:       domain.ActionRemove,
					IndexVersion: current.Versions[name],
				})
			}
		}
	}
	slices.SortFunc(plans, func(a, b domain.DatasetPlan) int { return strings.Compare(a.Dataset, b.Dataset) })
	return plans
}

func hasDataset(gen *domain.Generation, name string) bool {
	_, ok := gen.Versions[name]
	return ok
}

func changed(plans []domain.DatasetPlan) bool {
	for _, p := range plans {
		if p.Action != domain.ActionKeep {
			return true
		}
	}
	return false
}

// build creates a generation and fills it according to the plans.
// It never promotes; on error the new generation is already deleted.
func (m *IndexManager) build(
	ctx context.Context,
	catalog *domain.ResolvedCatalog,
	current *domain.Generation,
	outcome *domain.BuildOutcome,
) (*domain.Generation, error) {
	gen := &domain.Generation{
		Name:      m.generationName(),
		Alias:     m.settings.Alias,
		CreatedAt: m.now().UTC(),
		Versions:  make(map[string]string),
		Counts:    make(map[string]int),
		Scopes:    CatalogScopes(catalog),
	}
	outcome.Generation = gen.Name

	if err := m.backend.CreateIndex(ctx, gen.Name); err != nil {
		return nil, domain.BuildErrorf("create index %s: %v", gen.Name, err)
	}
	m.record(ctx, domain.AuditReindexStarted, gen.Name, "")
	logger.Info("building generation %s", gen.Name)

	var loaded, removed bool
	failed := make(map[string]string)
	for _, p := range outcome.Plans {
		if err := ctx.Err(); err != nil {
			m.discard(ctx, gen.Name)
			return nil, domain.BuildErrorf("build cancelled: %v", err)
		}

		var version string
		var err error
		switch p.Action {
		case domain.ActionRemove:
			removed = true
			logger.Info("dropping dataset %s", p.Dataset)
			continue
		case domain.ActionKeep:
			version = p.IndexVersion
			err = m.copyDataset(ctx, current, gen, p.Dataset)
			if err != nil {
				m.discard(ctx, gen.Name)
				return nil, err
			}
		default:
			ds, _ := catalog.Get(p.Dataset)
			version, err = m.loadDataset(ctx, current, gen, *ds, p)
			if err != nil {
				m.metrics.ObserveDataset(p.Dataset, p.Action, 0, err)
				logger.Warn("dataset %s failed: %v", p.Dataset, err)
				failed[p.Dataset] = err.Error()
				if m.settings.AllOrNothing {
					outcome.Failed = failed
					m.discard(ctx, gen.Name)
					return nil, domain.BuildErrorf("dataset %s: %v", p.Dataset, err)
				}
				if current == nil || !hasDataset(current, p.Dataset) {
					continue
				}
				// Carry the previous version so the live data never shrinks.
				if err := m.backend.DeleteDataset(ctx, gen.Name, p.Dataset); err != nil {
					m.discard(ctx, gen.Name)
					return nil, domain.BuildErrorf("reset %s: %v", p.Dataset, err)
				}
				version = p.IndexVersion
				if err := m.copyDataset(ctx, current, gen, p.Dataset); err != nil {
					m.discard(ctx, gen.Name)
					return nil, err
				}
			} else {
				loaded = true
			}
		}

		count, err := m.backend.CountDataset(ctx, gen.Name, p.Dataset)
		if err != nil {
			m.discard(ctx, gen.Name)
			return nil, domain.BuildErrorf("count %s: %v", p.Dataset, err)
		}
		if p.Action != domain.ActionKeep && failed[p.Dataset] == "" {
			m.metrics.ObserveDataset(p.Dataset, p.Action, count, nil)
		}
		gen.Versions[p.Dataset] = version
		gen.Counts[p.Dataset] = count
	}

	if len(failed) > 0 {
		outcome.Failed = failed
	}
	if !loaded && !removed && len(failed) > 0 {
		m.discard(ctx, gen.Name)
		return nil, domain.BuildErrorf("no dataset could be loaded (%d failed)", len(failed))
	}
	return gen, nil
}

// loadDataset fetches one dataset into the generation with retries and
// returns the version reached.
func (m *IndexManager) loadDataset(
	ctx context.Context,
	current *domain.Generation,
	gen *domain.Generation,
	ds domain.Dataset,
	p domain.DatasetPlan,
) (string, error) {
	var version string
	op := func(attempt int) error {
		if attempt > 1 {
			if err := m.backend.DeleteDataset(ctx, gen.Name, ds.Name); err != nil {
				return domain.BuildErrorf("reset %s: %v", ds.Name, err)
			}
		}

		base := ""
		if p.Action == domain.ActionDelta {
			base = p.IndexVersion
		}
		plan, err := m.fetcher.Plan(ctx, ds, base, m.settings.DeltaUpdates && p.Action == domain.ActionDelta)
		if err != nil {
			return err
		}
		if plan.Mode == domain.FetchDelta {
			if err := m.copyDataset(ctx, current, gen, ds.Name); err != nil {
				return err
			}
		}

		logger.Info("loading %s (%s %s -> %s)", ds.Name, plan.Mode, plan.BaseVersion, plan.TargetVersion)
		v, err := m.stream(ctx, gen.Name, ds, plan)
		if err != nil {
			return err
		}
		version = v
		return nil
	}

	attempts := m.settings.FetchRetries + 1
	if err := RetryWithBackoff(ctx, op, attempts, m.settings.RetryDelay.Std()); err != nil {
		return "", err
	}
	return version, nil
}

// stream consumes a fetch and writes it through an aggregator.
func (m *IndexManager) stream(ctx context.Context, index string, ds domain.Dataset, plan domain.FetchPlan) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	agg := NewAggregator(m.backend, m.model, index, ds.Name, m.settings.BatchSize, plan.Mode == domain.FetchFull)
	opsCh, errsCh := m.fetcher.Fetch(ctx, ds, plan)

	var complete *driven.FetchComplete
	for opsCh != nil || errsCh != nil {
		select {
		case op, ok := <-opsCh:
			if !ok {
				opsCh = nil
				continue
			}
			if err := agg.Add(ctx, op); err != nil {
				return "", err
			}
		case err, ok := <-errsCh:
			if !ok {
				errsCh = nil
				continue
			}
			if fc, done := driven.IsFetchComplete(err); done {
				complete = fc
				continue
			}
			return "", err
		}
	}

	if complete == nil {
		return "", &domain.FetchError{URL: ds.EntitiesURL, Err: errors.New("stream ended before completion")}
	}
	if err := agg.Flush(ctx); err != nil {
		return "", err
	}
	logger.Debug("%s: %d operations written", ds.Name, agg.Written())

	version := plan.TargetVersion
	if complete.Version != "" {
		version = complete.Version
	}
	return version, nil
}

func (m *IndexManager) copyDataset(ctx context.Context, current, gen *domain.Generation, dataset string) error {
	if current == nil {
		return domain.BuildErrorf("no generation to copy %s from", dataset)
	}
	n, err := m.backend.CopyDataset(ctx, current.Name, gen.Name, dataset)
	if err != nil {
		return domain.BuildErrorf("copy %s: %v", dataset, err)
	}
	logger.Debug("copied %d entities of %s from %s", n, dataset, current.Name)
	return nil
}

// promote marks the generation complete, repoints the alias and prunes
// superseded generations.
func (m *IndexManager) promote(ctx context.Context, gen, previous *domain.Generation) error {
	gen.Complete = true
	if err := m.backend.PutGeneration(ctx, *gen); err != nil {
		return domain.BuildErrorf("store metadata: %v", err)
	}
	if err := m.backend.PutAlias(ctx, m.settings.Alias, gen.Name); err != nil {
		return domain.BuildErrorf("repoint alias: %v", err)
	}
	prev := ""
	if previous != nil {
		prev = previous.Name
	}
	logger.Info("alias %s -> %s", m.settings.Alias, gen.Name)
	m.record(ctx, domain.AuditAliasRollover, gen.Name, "previous: "+prev)

	if err := m.prune(ctx, gen.Name, prev); err != nil {
		logger.Warn("pruning generations failed: %v", err)
	}
	return nil
}

// prune deletes every generation except the new one and its predecessor.
func (m *IndexManager) prune(ctx context.Context, keep ...string) error {
	names, err := m.backend.ListIndices(ctx, m.settings.Alias+"-")
	if err != nil {
		return err
	}
	for _, name := range names {
		if slices.Contains(keep, name) {
			continue
		}
		target, err := m.aliasTarget(ctx)
		if err != nil {
			return err
		}
		if name == target {
			continue
		}
		if err := m.deleteIndex(ctx, name, "superseded"); err != nil {
			return err
		}
	}
	return nil
}

func (m *IndexManager) aliasTarget(ctx context.Context) (string, error) {
	target, err := m.backend.GetAlias(ctx, m.settings.Alias)
	if errors.Is(err, domain.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get alias: %w", err)
	}
	return target, nil
}

func (m *IndexManager) deleteIndex(ctx context.Context, name, reason string) error {
	if err := m.backend.DeleteIndex(ctx, name); err != nil {
		return fmt.Errorf("delete index %s: %w", name, err)
	}
	m.record(ctx, domain.AuditIndexDeleted, name, reason)
	return nil
}

// discard deletes an unpromoted generation.
func (m *IndexManager) discard(ctx context.Context, name string) {
	if target, err := m.aliasTarget(ctx); err == nil && target == name {
		return
	}
	if err := m.deleteIndex(ctx, name, "build discarded"); err != nil {
		logger.Warn("discarding %s: %v", name, err)
	}
}

func (m *IndexManager) generationName() string {
	return fmt.Sprintf("%s-%s-%s", m.settings.Alias, formatVersion(m.now()), uuid.NewString()[:8])
}

func (m *IndexManager) record(ctx context.Context, event, index, message string) {
	if m.audit == nil {
		return
	}
	err := m.audit.Record(ctx, domain.AuditEvent{
		Timestamp: m.now().UTC(),
		Event:     event,
		Index:     index,
		Message:   message,
	})
	if err != nil {
		logger.Warn("audit log: %v", err)
	}
}
