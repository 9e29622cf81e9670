package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driving"
)

// Ensure StatusService implements the interface.
var _ driving.StatusService = (*StatusService)(nil)

// StatusService answers liveness, readiness and freshness queries.
type StatusService struct {
	catalog driving.CatalogService
	indexer driving.IndexManager
	backend driven.IndexBackend
	tracker *Tracker
	audit   driven.AuditLog
}

// NewStatusService creates a status service.
// The audit log is optional (can be nil).
func NewStatusService(
	catalog driving.CatalogService,
	indexer driving.IndexManager,
	backend driven.IndexBackend,
	tracker *Tracker,
	audit driven.AuditLog,
) *StatusService {
	return &StatusService{
		catalog: catalog,
		indexer: indexer,
		backend: backend,
		tracker: tracker,
		audit:   audit,
	}
}

// Live always succeeds while the process answers.
func (s *StatusService) Live(_ context.Context) error {
	return nil
}

// Ready succeeds when a complete generation is aliased and the backend answers.
func (s *StatusService) Ready(ctx context.Context) error {
	gen, err := s.indexer.Current(ctx)
	if err != nil {
		return err
	}
	if !gen.Complete {
		return fmt.Errorf("%w: generation %s is incomplete", domain.ErrIndexNotReady, gen.Name)
	}
	if err := s.backend.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	return nil
}

// Status compares upstream and indexed versions per dataset.
func (s *StatusService) Status(ctx context.Context) (*domain.CatalogStatus, error) {
	catalog, err := s.catalog.Current(ctx)
	if err != nil {
		return nil, err
	}

	gen, err := s.indexer.Current(ctx)
	if err != nil && !errors.Is(err, domain.ErrIndexNotReady) {
		return nil, err
	}

	status := &domain.CatalogStatus{
		Datasets: make([]domain.DatasetStatus, 0, len(catalog.Datasets)),
		Current:  []string{},
		Outdated: []string{},
		State:    s.indexer.State(),
	}
	if gen != nil {
		status.Generation = gen.Name
	}

	upToDate := make(map[string]bool)
	for _, ds := range catalog.Loadable() {
		current := gen.Version(ds.Name) == ds.Version
		upToDate[ds.Name] = current
		if current {
			status.Current = append(status.Current, ds.Name)
		} else {
			status.Outdated = append(status.Outdated, ds.Name)
		}
	}

	for _, ds := range catalog.Datasets {
		st := domain.DatasetStatus{
			Name:         ds.Name,
			Title:        ds.Title,
			Kind:         ds.Kind,
			Load:         ds.Loadable(),
			Version:      ds.Version,
			IndexVersion: gen.Version(ds.Name),
			Error:        s.tracker.Failure(ds.Name),
			Children:     ds.Children,
		}
		if gen != nil {
			st.Entities = gen.Counts[ds.Name]
		}
		if st.Load {
			st.IndexCurrent = upToDate[ds.Name]
		} else {
			st.IndexCurrent = true
			for _, name := range catalog.ScopeNames(ds.Name) {
				if current, loaded := upToDate[name]; loaded && !current {
					st.IndexCurrent = false
				}
			}
		}
		status.Datasets = append(status.Datasets, st)
	}

	status.IndexStale = gen == nil || len(status.Outdated) > 0
	s.tracker.Fill(status)
	return status, nil
}

// AuditLog returns recent index events.
func (s *StatusService) AuditLog(ctx context.Context, limit int) ([]domain.AuditEvent, error) {
	if s.audit == nil {
		return []domain.AuditEvent{}, nil
	}
	if limit <= 0 {
		limit = 100
	}
	return s.audit.List(ctx, limit)
}
