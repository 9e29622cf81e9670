package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-match/internal/normalize"
)

// Ensure Backend implements the interface.
var _ driven.IndexBackend = (*Backend)(nil)

// Backend is an in-memory implementation of driven.IndexBackend.
// It follows the SQLite backend's matching rules: a term matches when
// its folded tokens appear in order in the field, and a hit scores the
// sum of the boosts of the clauses it matches.
type Backend struct {
	mu      sync.RWMutex
	model   *domain.Model
	indices map[string]*memIndex
	aliases map[string]string
}

type memIndex struct {
	meta *domain.Generation
	docs map[docKey]*memDoc
}

type docKey struct {
	dataset string
	id      string
}

type memDoc struct {
	dataset   string
	entity    domain.Entity
	tokens    map[string][]string
	countries []string
	topics    []string
	refs      []string
}

// NewBackend creates an empty in-memory backend.
func NewBackend(model *domain.Model) *Backend {
	if model == nil {
		model = domain.DefaultModel()
	}
	return &Backend{
		model:   model,
		indices: make(map[string]*memIndex),
		aliases: make(map[string]string),
	}
}

// CreateIndex registers an empty index.
func (b *Backend) CreateIndex(_ context.Context, index string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.indices[index]; ok {
		return fmt.Errorf("%w: index %s exists", domain.ErrInvalidInput, index)
	}
	b.indices[index] = &memIndex{docs: make(map[docKey]*memDoc)}
	return nil
}

// DeleteIndex removes an index unless an alias points at it.
func (b *Backend) DeleteIndex(_ context.Context, index string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for alias, target := range b.aliases {
		if target == index {
			return fmt.Errorf("%w: index %s is aliased by %s", domain.ErrInvalidInput, index, alias)
		}
	}
	delete(b.indices, index)
	return nil
}

// ListIndices returns index names with the prefix, sorted.
func (b *Backend) ListIndices(_ context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var names []string
	for name := range b.indices {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// BulkWrite applies the operations atomically.
func (b *Backend) BulkWrite(_ context.Context, index string, ops []domain.IndexOp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, err := b.index(index)
	if err != nil {
		return err
	}

	staged := make(map[docKey]*memDoc)
	get := func(k docKey) *memDoc {
		if d, ok := staged[k]; ok {
			return d
		}
		return idx.docs[k]
	}
	for i := range ops {
		doc := ops[i].Document
		k := docKey{dataset: doc.Dataset, id: doc.Entity.ID}
		switch ops[i].Type {
		case domain.IndexDelete:
			staged[k] = nil
		case domain.IndexMerge:
			if prev := get(k); prev != nil {
				merged := prev.entity.Clone()
				merged.Merge(b.model, &doc.Entity)
				doc = normalize.Document(b.model, doc.Dataset, merged)
			}
			staged[k] = newDoc(doc)
		default:
			staged[k] = newDoc(doc)
		}
	}
	for k, d := range staged {
		if d == nil {
			delete(idx.docs, k)
			continue
		}
		idx.docs[k] = d
	}
	return nil
}

// CopyDataset copies a dataset's documents between indices.
func (b *Backend) CopyDataset(_ context.Context, from, to, dataset string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	src, err := b.index(from)
	if err != nil {
		return 0, err
	}
	dst, err := b.index(to)
	if err != nil {
		return 0, err
	}
	n := 0
	for k, d := range src.docs {
		if k.dataset == dataset {
			dst.docs[k] = d
			n++
		}
	}
	return n, nil
}

// DeleteDataset removes a dataset's documents.
func (b *Backend) DeleteDataset(_ context.Context, index, dataset string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, err := b.index(index)
	if err != nil {
		return err
	}
	for k := range idx.docs {
		if k.dataset == dataset {
			delete(idx.docs, k)
		}
	}
	return nil
}

// CountDataset counts a dataset's documents.
func (b *Backend) CountDataset(_ context.Context, index, dataset string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	idx, err := b.index(index)
	if err != nil {
		return 0, err
	}
	n := 0
	for k := range idx.docs {
		if k.dataset == dataset {
			n++
		}
	}
	return n, nil
}

// PutGeneration stores generation metadata.
func (b *Backend) PutGeneration(_ context.Context, gen domain.Generation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, err := b.index(gen.Name)
	if err != nil {
		return err
	}
	idx.meta = &gen
	return nil
}

// GetGeneration returns a copy of the generation metadata.
func (b *Backend) GetGeneration(_ context.Context, index string) (*domain.Generation, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	idx, err := b.index(index)
	if err != nil {
		return nil, err
	}
	if idx.meta == nil {
		return nil, fmt.Errorf("%w: generation %s", domain.ErrNotFound, index)
	}
	gen := *idx.meta
	return &gen, nil
}

// GetAlias returns the alias target.
func (b *Backend) GetAlias(_ context.Context, alias string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	target, ok := b.aliases[alias]
	if !ok {
		return "", fmt.Errorf("%w: alias %s", domain.ErrNotFound, alias)
	}
	return target, nil
}

// PutAlias repoints an alias.
func (b *Backend) PutAlias(_ context.Context, alias, index string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.index(index); err != nil {
		return err
	}
	b.aliases[alias] = index
	return nil
}

// Query evaluates the clauses against every document of the index.
func (b *Backend) Query(_ context.Context, index string, q domain.BackendQuery) (*domain.BackendResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	idx, err := b.index(index)
	if err != nil {
		return nil, err
	}

	var hits []domain.BackendHit
	for _, d := range idx.docs {
		score, ok := d.score(q)
		if !ok || !d.passes(q) {
			continue
		}
		hits = append(hits, domain.BackendHit{Dataset: d.dataset, Entity: *d.entity.Clone(), Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Entity.ID != hits[j].Entity.ID {
			return hits[i].Entity.ID < hits[j].Entity.ID
		}
		return hits[i].Dataset < hits[j].Dataset
	})

	result := &domain.BackendResult{Total: len(hits), Facets: facets(q.Facets, hits, idx)}
	size := q.Size
	if size <= 0 {
		size = 10
	}
	if q.GroupByID {
		result.Total, result.Hits = groupPage(hits, q.Offset, size)
		return result, nil
	}
	start := min(max(q.Offset, 0), len(hits))
	end := min(start+size, len(hits))
	result.Hits = hits[start:end]
	return result, nil
}

// groupPage pages over distinct IDs in rank order and returns every row
// of the IDs on the page.
func groupPage(hits []domain.BackendHit, offset, size int) (int, []domain.BackendHit) {
	var ids []string
	seen := make(map[string]bool)
	for i := range hits {
		if id := hits[i].Entity.ID; !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	start := min(max(offset, 0), len(ids))
	end := min(start+size, len(ids))
	page := make(map[string]bool, end-start)
	for _, id := range ids[start:end] {
		page[id] = true
	}
	var out []domain.BackendHit
	for i := range hits {
		if page[hits[i].Entity.ID] {
			out = append(out, hits[i])
		}
	}
	return len(ids), out
}

// facets counts distinct entity IDs per value over every hit.
func facets(names []string, hits []domain.BackendHit, idx *memIndex) map[string][]domain.FacetValue {
	if len(names) == 0 {
		return nil
	}
	out := make(map[string][]domain.FacetValue, len(names))
	for _, name := range names {
		buckets := make(map[string]map[string]bool)
		for i := range hits {
			h := &hits[i]
			d := idx.docs[docKey{dataset: h.Dataset, id: h.Entity.ID}]
			if d == nil {
				continue
			}
			for _, v := range d.facetValues(name) {
				if buckets[v] == nil {
					buckets[v] = make(map[string]bool)
				}
				buckets[v][h.Entity.ID] = true
			}
		}
		values := make([]domain.FacetValue, 0, len(buckets))
		for v, ids := range buckets {
			values = append(values, domain.FacetValue{Name: v, Count: len(ids)})
		}
		sort.Slice(values, func(i, j int) bool {
			if values[i].Count != values[j].Count {
				return values[i].Count > values[j].Count
			}
			return values[i].Name < values[j].Name
		})
		out[name] = values
	}
	return out
}

func (d *memDoc) facetValues(name string) []string {
	switch name {
	case domain.FacetDatasets:
		return []string{d.dataset}
	case domain.FacetSchema:
		return []string{d.entity.Schema}
	case domain.FacetCountries:
		return d.countries
	case domain.FacetTopics:
		return d.topics
	}
	return nil
}

// Ping always succeeds.
func (b *Backend) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (b *Backend) Close() error {
	return nil
}

func (b *Backend) index(name string) (*memIndex, error) {
	idx, ok := b.indices[name]
	if !ok {
		return nil, fmt.Errorf("%w: index %s", domain.ErrNotFound, name)
	}
	return idx, nil
}

func newDoc(doc domain.IndexDocument) *memDoc {
	tokens := make(map[string][]string, len(doc.Fields))
	for field, values := range doc.Fields {
		tokens[field] = normalize.Tokens(strings.Join(values, " "))
	}
	return &memDoc{
		dataset:   doc.Dataset,
		entity:    *doc.Entity.Clone(),
		tokens:    tokens,
		countries: doc.Fields[domain.FieldCountries],
		topics:    doc.Topics,
		refs:      doc.References,
	}
}

// score reports the summed boosts and whether the clauses admit the doc.
func (d *memDoc) score(q domain.BackendQuery) (float64, bool) {
	total := 0.0
	for _, c := range q.Must {
		if !d.matches(c) {
			return 0, false
		}
		total += c.Boost
	}
	anyShould := false
	for _, c := range q.Should {
		if d.matches(c) {
			anyShould = true
			total += c.Boost
		}
	}
	if len(q.Must) == 0 && len(q.Should) > 0 && !anyShould {
		return 0, false
	}
	return total, true
}

func (d *memDoc) passes(q domain.BackendQuery) bool {
	if len(q.Datasets) > 0 && !d.entity.InDatasets(q.Datasets) {
		return false
	}
	if len(q.Schemata) > 0 && !slices.Contains(q.Schemata, d.entity.Schema) {
		return false
	}
	if len(q.IDs) > 0 {
		found := slices.Contains(q.IDs, d.entity.ID)
		for _, ref := range d.entity.Referents {
			found = found || slices.Contains(q.IDs, ref)
		}
		if !found {
			return false
		}
	}
	if len(q.Countries) > 0 && !overlaps(q.Countries, d.countries) {
		return false
	}
	if len(q.Topics) > 0 && !overlaps(q.Topics, d.topics) {
		return false
	}
	if len(q.References) > 0 && !overlaps(q.References, d.refs) {
		return false
	}
	return true
}

func overlaps(want, have []string) bool {
	for _, v := range have {
		if slices.Contains(want, v) {
			return true
		}
	}
	return false
}

func (d *memDoc) matches(c domain.Clause) bool {
	field := d.tokens[c.Field]
	matched, usable := 0, 0
	for _, term := range c.Terms {
		phrase := normalize.Tokens(term)
		if len(phrase) == 0 {
			continue
		}
		usable++
		if containsPhrase(field, phrase, c.Prefix) {
			matched++
		}
	}
	if usable == 0 {
		return false
	}
	if c.All {
		return usable == len(c.Terms) && matched == usable
	}
	return matched > 0
}

func containsPhrase(tokens, phrase []string, prefix bool) bool {
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		ok := true
		for j, p := range phrase {
			t := tokens[i+j]
			last := j == len(phrase)-1
			if t != p && !(prefix && last && strings.HasPrefix(t, p)) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}
