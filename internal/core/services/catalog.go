package services

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-match/internal/logger"
)

// Ensure CatalogService implements the interface.
var _ driving.CatalogService = (*CatalogService)(nil)

// DefaultResourceName is the entities resource picked from remote catalogs.
const DefaultResourceName = "entities.ftm.json"

// VersionLayout formats versions derived from timestamps.
const VersionLayout = "20060102150405"

// CatalogService resolves the manifest into a flat dataset catalog.
type CatalogService struct {
	loader   driven.ManifestLoader
	fetcher  driven.CatalogFetcher
	location string

	// bootVersion is the version of datasets that declare none and
	// have no local file to derive one from.
	bootVersion string
	now         func() time.Time

	mu      sync.RWMutex
	current *domain.ResolvedCatalog
}

// NewCatalogService creates a catalog service reading the manifest at location.
func NewCatalogService(loader driven.ManifestLoader, fetcher driven.CatalogFetcher, location string) *CatalogService {
	return &CatalogService{
		loader:      loader,
		fetcher:     fetcher,
		location:    location,
		bootVersion: formatVersion(time.Now()),
		now:         time.Now,
	}
}

// Resolve reads the manifest and its remote catalogs.
// On failure the last good catalog stays in effect.
func (s *CatalogService) Resolve(ctx context.Context) (*domain.ResolvedCatalog, error) {
	manifest, err := s.loader.LoadManifest(ctx, s.location)
	if err != nil {
		if !errors.Is(err, domain.ErrConfig) {
			err = domain.ConfigErrorf("load manifest %s: %v", s.location, err)
		}
		return nil, err
	}

	datasets, err := s.resolve(ctx, manifest)
	if err != nil {
		return nil, err
	}

	catalog := domain.NewResolvedCatalog(datasets, s.now())
	s.mu.Lock()
	s.current = catalog
	s.mu.Unlock()

	logger.Debug("resolved catalog: %d datasets, %d loadable", len(catalog.Datasets), len(catalog.Loadable()))
	return catalog, nil
}

// Current returns the last good catalog, resolving once if there is none.
func (s *CatalogService) Current(ctx context.Context) (*domain.ResolvedCatalog, error) {
	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()
	if current != nil {
		return current, nil
	}
	return s.Resolve(ctx)
}

func (s *CatalogService) resolve(ctx context.Context, manifest *domain.Manifest) ([]domain.Dataset, error) {
	var declared []domain.Dataset
	index := make(map[string]int)

	add := func(ds domain.Dataset) error {
		i, exists := index[ds.Name]
		if !exists {
			index[ds.Name] = len(declared)
			declared = append(declared, ds)
			return nil
		}
		if !ds.Override {
			return domain.ConfigErrorf("dataset %q declared by both %s and %s", ds.Name, declared[i].Origin, ds.Origin)
		}
		declared[i] = overrideDataset(declared[i], ds)
		return nil
	}

	for _, src := range manifest.Catalogs {
		datasets, err := s.remoteCatalog(ctx, src)
		if err != nil {
			if src.Optional {
				logger.Warn("skipping optional catalog %s: %v", src.URL, err)
				continue
			}
			return nil, err
		}
		for _, ds := range datasets {
			if err := add(ds); err != nil {
				return nil, err
			}
		}
	}

	for _, ds := range manifest.Datasets {
		if ds.Origin == "" {
			ds.Origin = "manifest"
		}
		if err := add(ds); err != nil {
			return nil, err
		}
	}

	for i := range declared {
		s.fillDefaults(&declared[i])
	}
	if err := validateDatasets(declared); err != nil {
		return nil, err
	}
	if err := detectCycles(declared); err != nil {
		return nil, err
	}
	return declared, nil
}

// remoteCatalog fetches a catalog index and converts its entries.
// With a scope only the scope dataset and its members are kept and
// only the scope dataset is loaded. Without one every source dataset
// publishing the entities resource is loaded.
func (s *CatalogService) remoteCatalog(ctx context.Context, src domain.CatalogSource) ([]domain.Dataset, error) {
	idx, err := s.fetcher.FetchCatalog(ctx, src.URL)
	if err != nil {
		return nil, domain.ConfigErrorf("catalog %s: %v", src.URL, err)
	}

	entries := make(map[string]domain.CatalogEntry, len(idx.Datasets))
	for _, e := range idx.Datasets {
		entries[e.Name] = e
	}

	keep := make(map[string]bool)
	if src.Scope != "" {
		if _, ok := entries[src.Scope]; !ok {
			return nil, domain.ConfigErrorf("catalog %s has no dataset %q", src.URL, src.Scope)
		}
		var walk func(string)
		walk = func(name string) {
			if keep[name] {
				return
			}
			keep[name] = true
			for _, child := range entryChildren(entries[name]) {
				if _, ok := entries[child]; ok {
					walk(child)
				}
			}
		}
		walk(src.Scope)
	}

	var out []domain.Dataset
	for _, e := range idx.Datasets {
		if src.Scope != "" && !keep[e.Name] {
			continue
		}
		ds := domain.Dataset{
			Name:     e.Name,
			Title:    e.Title,
			Kind:     entryKind(e.Type),
			Version:  e.Version,
			DeltaURL: resolveURL(src.URL, e.DeltaURL),
			Origin:   src.URL,
		}
		if ds.Version == "" {
			ds.Version = e.LastExport
		}
		for _, child := range entryChildren(e) {
			if _, ok := entries[child]; ok && (src.Scope == "" || keep[child]) {
				ds.Children = append(ds.Children, child)
			}
		}

		load := false
		resource := pickResource(e.Resources, src)
		switch {
		case src.Scope != "":
			load = e.Name == src.Scope
		default:
			load = ds.Kind == domain.KindSource
		}
		if load {
			if resource == "" {
				if e.Name == src.Scope {
					return nil, domain.ConfigErrorf("catalog %s: dataset %q has no entities resource", src.URL, e.Name)
				}
				load = false
			}
			ds.EntitiesURL = resolveURL(src.URL, resource)
		}
		ds.Load = &load
		out = append(out, ds)
	}
	return out, nil
}

func (s *CatalogService) fillDefaults(ds *domain.Dataset) {
	if ds.Kind == "" {
		if len(ds.Children) > 0 {
			ds.Kind = domain.KindCollection
		} else {
			ds.Kind = domain.KindSource
		}
	}
	if ds.Format == "" {
		ds.Format = domain.FormatNDJSON
	}
	ds.Children = uniqueNames(ds.Children)
	if ds.Version == "" && ds.EntitiesURL != "" {
		ds.Version = s.fetcher.ResourceVersion(ds.EntitiesURL)
	}
	if ds.Version == "" {
		ds.Version = s.bootVersion
	}
}

// overrideDataset applies an explicit override: member lists are
// merged, scalars that the override sets replace the earlier ones.
func overrideDataset(base, over domain.Dataset) domain.Dataset {
	out := base
	if over.Title != "" {
		out.Title = over.Title
	}
	if over.Kind != "" {
		out.Kind = over.Kind
	}
	if over.Version != "" {
		out.Version = over.Version
	}
	if over.EntitiesURL != "" {
		out.EntitiesURL = over.EntitiesURL
	}
	if over.DeltaURL != "" {
		out.DeltaURL = over.DeltaURL
	}
	if over.Format != "" {
		out.Format = over.Format
	}
	if over.Load != nil {
		out.Load = over.Load
	}
	out.Children = uniqueNames(append(slices.Clone(base.Children), over.Children...))
	out.Origin = base.Origin + "," + over.Origin
	return out
}

func validateDatasets(datasets []domain.Dataset) error {
	names := make(map[string]bool, len(datasets))
	for _, ds := range datasets {
		names[ds.Name] = true
	}
	for _, ds := range datasets {
		if !domain.ValidDatasetName(ds.Name) {
			return domain.ConfigErrorf("invalid dataset name %q (%s)", ds.Name, ds.Origin)
		}
		if !ds.Kind.Valid() {
			return domain.ConfigErrorf("dataset %q has unknown kind %q", ds.Name, ds.Kind)
		}
		if ds.Format != domain.FormatNDJSON && ds.Format != domain.FormatPaged {
			return domain.ConfigErrorf("dataset %q has unknown format %q", ds.Name, ds.Format)
		}
		if ds.Kind != domain.KindCollection && len(ds.Children) > 0 {
			return domain.ConfigErrorf("dataset %q of kind %s cannot have children", ds.Name, ds.Kind)
		}
		for _, child := range ds.Children {
			if !names[child] {
				return domain.ConfigErrorf("collection %q references unknown dataset %q", ds.Name, child)
			}
		}
		if ds.Load != nil && *ds.Load && ds.EntitiesURL == "" {
			return domain.ConfigErrorf("dataset %q is marked for loading but has no entities_url", ds.Name)
		}
	}
	return nil
}

// detectCycles walks the membership graph depth first. A dataset seen
// again while still on the current path closes a cycle.
func detectCycles(datasets []domain.Dataset) error {
	children := make(map[string][]string, len(datasets))
	for _, ds := range datasets {
		children[ds.Name] = ds.Children
	}

	const (
		unvisited = iota
		onPath
		done
	)
	state := make(map[string]int, len(datasets))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case onPath:
			start := slices.Index(path, name)
			cycle := append(slices.Clone(path[start:]), name)
			return domain.ConfigErrorf("collection cycle: %s", strings.Join(cycle, " -> "))
		case done:
			return nil
		}
		state[name] = onPath
		path = append(path, name)
		for _, child := range children[name] {
			if err := visit(child); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[name] = done
		return nil
	}

	for _, ds := range datasets {
		if err := visit(ds.Name); err != nil {
			return err
		}
	}
	return nil
}

// CatalogScopes maps each dataset to the names its scope covers.
func CatalogScopes(catalog *domain.ResolvedCatalog) map[string][]string {
	scopes := make(map[string][]string, len(catalog.Datasets))
	for _, ds := range catalog.Datasets {
		scopes[ds.Name] = catalog.ScopeNames(ds.Name)
	}
	return scopes
}

func entryKind(t string) domain.DatasetKind {
	switch domain.DatasetKind(t) {
	case domain.KindCollection:
		return domain.KindCollection
	case domain.KindExternal:
		return domain.KindExternal
	default:
		return domain.KindSource
	}
}

func entryChildren(e domain.CatalogEntry) []string {
	var out []string
	out = append(out, e.Children...)
	out = append(out, e.Sources...)
	out = append(out, e.Externals...)
	return uniqueNames(out)
}

func pickResource(resources []domain.CatalogResource, src domain.CatalogSource) string {
	name := src.ResourceName
	if name == "" && src.ResourceType == "" {
		name = DefaultResourceName
	}
	for _, r := range resources {
		if name != "" && r.Name == name {
			return r.URL
		}
		if src.ResourceType != "" && r.MIMEType == src.ResourceType {
			return r.URL
		}
	}
	return ""
}

func resolveURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil || b.Scheme == "" {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func uniqueNames(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	out := slices.Clone(names)
	slices.Sort(out)
	return slices.Compact(out)
}

// formatVersion renders a timestamp as a dataset version.
func formatVersion(t time.Time) string {
	return t.UTC().Format(VersionLayout)
}
