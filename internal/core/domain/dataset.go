package domain

import (
	"regexp"
	"sort"
	"time"
)

// DatasetKind distinguishes leaf datasets from groupings.
type DatasetKind string

// Dataset kinds.
const (
	KindSource     DatasetKind = "source"
	KindCollection DatasetKind = "collection"
	KindExternal   DatasetKind = "external"
)

// Valid reports whether the kind is known.
func (k DatasetKind) Valid() bool {
	switch k {
	case KindSource, KindCollection, KindExternal:
		return true
	default:
		return false
	}
}

// Data formats understood by the fetcher.
const (
	FormatNDJSON = "ndjson"
	FormatPaged  = "paged"
)

var datasetNamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValidDatasetName reports whether name is a slug usable as a dataset name.
func ValidDatasetName(name string) bool {
	return datasetNamePattern.MatchString(name)
}

// Dataset is a named, versioned unit of indexable entities.
type Dataset struct {
	// Name is the unique slug.
	Name string `json:"name" toml:"name" yaml:"name"`

	// Title is a display label.
	Title string `json:"title,omitempty" toml:"title" yaml:"title"`

	// Kind is source, collection or external.
	Kind DatasetKind `json:"kind" toml:"kind" yaml:"kind"`

	// Version is the upstream version token.
	Version string `json:"version,omitempty" toml:"version" yaml:"version"`

	// Children lists member datasets of a collection.
	Children []string `json:"children,omitempty" toml:"children" yaml:"children"`

	// EntitiesURL is where the entity data lives.
	EntitiesURL string `json:"entities_url,omitempty" toml:"entities_url" yaml:"entities_url"`

	// DeltaURL points to the delta index document, if published.
	DeltaURL string `json:"delta_url,omitempty" toml:"delta_url" yaml:"delta_url"`

	// Format is "ndjson" (default) or "paged".
	Format string `json:"format,omitempty" toml:"format" yaml:"format"`

	// Load marks the dataset for indexing. Nil means "not a collection".
	Load *bool `json:"load,omitempty" toml:"load" yaml:"load"`

	// Override allows this declaration to replace an earlier one with
	// the same name from another source.
	Override bool `json:"override,omitempty" toml:"override" yaml:"override"`

	// Origin records where the declaration came from.
	Origin string `json:"origin,omitempty" toml:"-" yaml:"-"`
}

// ShouldLoad resolves the load flag.
func (d *Dataset) ShouldLoad() bool {
	if d.Load != nil {
		return *d.Load
	}
	return d.Kind != KindCollection
}

// Loadable reports whether the dataset is indexed.
func (d *Dataset) Loadable() bool {
	return d.ShouldLoad() && d.EntitiesURL != ""
}

// ResolvedCatalog is the flattened result of catalog resolution.
type ResolvedCatalog struct {
	// Datasets holds every known dataset sorted by name.
	Datasets []Dataset

	// ResolvedAt is when resolution finished.
	ResolvedAt time.Time

	byName   map[string]*Dataset
	children map[string][]string
}

// NewResolvedCatalog indexes a list of datasets.
func NewResolvedCatalog(datasets []Dataset, at time.Time) *ResolvedCatalog {
	c := &ResolvedCatalog{
		Datasets:   append([]Dataset(nil), datasets...),
		ResolvedAt: at,
		byName:     make(map[string]*Dataset, len(datasets)),
		children:   make(map[string][]string),
	}
	sort.Slice(c.Datasets, func(i, j int) bool { return c.Datasets[i].Name < c.Datasets[j].Name })
	for i := range c.Datasets {
		c.byName[c.Datasets[i].Name] = &c.Datasets[i]
		c.children[c.Datasets[i].Name] = c.Datasets[i].Children
	}
	return c
}

// Get returns a dataset by name.
func (c *ResolvedCatalog) Get(name string) (*Dataset, bool) {
	ds, ok := c.byName[name]
	return ds, ok
}

// Loadable returns the datasets that are indexed, sorted by name.
func (c *ResolvedCatalog) Loadable() []Dataset {
	var out []Dataset
	for i := range c.Datasets {
		if c.Datasets[i].Loadable() {
			out = append(out, c.Datasets[i])
		}
	}
	return out
}

// ScopeNames returns name and every dataset reachable from it.
// Entities tagged with any of these names are in scope.
func (c *ResolvedCatalog) ScopeNames(name string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		if seen[n] {
			return
		}
		seen[n] = true
		for _, child := range c.children[n] {
			walk(child)
		}
	}
	walk(name)
	return sortedKeys(seen)
}

// Leaves returns the non-collection datasets reachable from name.
func (c *ResolvedCatalog) Leaves(name string) []string {
	var out []string
	for _, n := range c.ScopeNames(name) {
		if ds, ok := c.byName[n]; ok && ds.Kind != KindCollection {
			out = append(out, n)
		}
	}
	return out
}

// CatalogSource is a remote catalog index referenced from the manifest.
type CatalogSource struct {
	// URL of the index document.
	URL string `json:"url" toml:"url" yaml:"url"`

	// Scope restricts the catalog to this dataset and its members.
	Scope string `json:"scope,omitempty" toml:"scope" yaml:"scope"`

	// Optional catalogs are skipped with a warning when they fail.
	Optional bool `json:"optional,omitempty" toml:"optional" yaml:"optional"`

	// ResourceName picks the entities resource of the scope dataset.
	ResourceName string `json:"resource_name,omitempty" toml:"resource_name" yaml:"resource_name"`

	// ResourceType picks the resource by MIME type instead.
	ResourceType string `json:"resource_type,omitempty" toml:"resource_type" yaml:"resource_type"`
}

// Manifest declares which datasets a deployment indexes.
type Manifest struct {
	// Catalogs are remote index documents.
	Catalogs []CatalogSource `json:"catalogs,omitempty" toml:"catalogs" yaml:"catalogs"`

	// Datasets are declared inline.
	Datasets []Dataset `json:"datasets,omitempty" toml:"datasets" yaml:"datasets"`

	// Schedule is the check interval, e.g. "1h".
	Schedule string `json:"schedule,omitempty" toml:"schedule" yaml:"schedule"`

	// Location is where the manifest was read from.
	Location string `json:"-" toml:"-" yaml:"-"`
}

// CatalogIndex is a remote catalog document.
type CatalogIndex struct {
	Datasets []CatalogEntry `json:"datasets"`
	RunTime  string         `json:"run_time,omitempty"`
}

// CatalogEntry is one dataset in a remote catalog document.
type CatalogEntry struct {
	Name        string            `json:"name"`
	Title       string            `json:"title,omitempty"`
	Type        string            `json:"type,omitempty"`
	Version     string            `json:"version,omitempty"`
	LastExport  string            `json:"last_export,omitempty"`
	Children    []string          `json:"children,omitempty"`
	Sources     []string          `json:"sources,omitempty"`
	Externals   []string          `json:"externals,omitempty"`
	Collections []string          `json:"collections,omitempty"`
	DeltaURL    string            `json:"delta_url,omitempty"`
	Resources   []CatalogResource `json:"resources,omitempty"`
}

// CatalogResource is a downloadable file of a catalog entry.
type CatalogResource struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	MIMEType string `json:"mime_type,omitempty"`
}
