package services

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-match/internal/normalize"
)

// Clause boosts used for candidate retrieval.
const (
	boostNameKey    = 4.0
	boostIdentifier = 5.0
	boostNameToken  = 1.0
	boostNamePart   = 1.0
	boostPhonetic   = 0.8
	boostDate       = 1.5
	boostAddress    = 0.5
	boostText       = 0.2
)

// maxQueryNames caps the names used for retrieval.
const maxQueryNames = 5

// generationReader dereferences the alias on every call. Generation
// metadata never changes after promotion, so it is cached by name.
type generationReader struct {
	backend driven.IndexBackend
	alias   string
	cache   *lru.Cache[string, *domain.Generation]
}

func newGenerationReader(backend driven.IndexBackend, alias string) *generationReader {
	cache, _ := lru.New[string, *domain.Generation](16)
	return &generationReader{backend: backend, alias: alias, cache: cache}
}

func (r *generationReader) current(ctx context.Context) (*domain.Generation, error) {
	name, err := r.backend.GetAlias(ctx, r.alias)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: alias %s is not set", domain.ErrIndexNotReady, r.alias)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	if gen, ok := r.cache.Get(name); ok {
		return gen, nil
	}
	gen, err := r.backend.GetGeneration(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: generation %s has no metadata", domain.ErrIndexNotReady, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	r.cache.Add(name, gen)
	return gen, nil
}

// CandidateClauses builds the retrieval clauses for a query entity.
// Every clause carries a strong signal: name tokens and keys, name
// parts, phonetic codes, identifiers or dates. Fuzzy queries also
// retrieve on addresses and free text.
func CandidateClauses(m *domain.Model, e *domain.Entity, fuzzy bool) []domain.Clause {
	names := normalize.PickNames(e.Names(m), maxQueryNames)

	var tokens []string
	for _, name := range names {
		tokens = append(tokens, normalize.Tokens(name)...)
	}

	var dates []string
	for _, d := range e.TypeValues(m, domain.TypeDate) {
		if key := normalize.DateKey(d); key != "" {
			dates = append(dates, key)
		}
	}

	var identifiers []string
	for _, id := range e.TypeValues(m, domain.TypeIdentifier) {
		if n := normalize.Identifier(id); len(n) >= 2 {
			identifiers = append(identifiers, n)
		}
	}

	clauses := []domain.Clause{
		{Field: domain.FieldNameKeys, Terms: normalize.Keys(names), Boost: boostNameKey},
		{Field: domain.FieldNames, Terms: normalize.Unique(tokens), Boost: boostNameToken},
		{Field: domain.FieldNameParts, Terms: normalize.NameParts(names), Boost: boostNamePart, Prefix: fuzzy},
		{Field: domain.FieldNamePhonetic, Terms: normalize.Phonemes(names), Boost: boostPhonetic},
		{Field: domain.FieldIdentifiers, Terms: normalize.Unique(identifiers), Boost: boostIdentifier},
		{Field: domain.FieldDates, Terms: normalize.Unique(dates), Boost: boostDate},
	}

	if fuzzy {
		var addr []string
		for _, a := range e.TypeValues(m, domain.TypeAddress) {
			addr = append(addr, normalize.Tokens(a)...)
		}
		var text []string
		for _, vals := range e.Properties {
			for _, v := range vals {
				text = append(text, normalize.Tokens(v)...)
			}
		}
		clauses = append(clauses,
			domain.Clause{Field: domain.FieldAddresses, Terms: normalize.Unique(addr), Boost: boostAddress},
			domain.Clause{Field: domain.FieldText, Terms: normalize.Unique(text), Boost: boostText},
		)
	}

	out := clauses[:0]
	for _, c := range clauses {
		if len(c.Terms) > 0 {
			out = append(out, c)
		}
	}
	return out
}

// mergeHits folds per-dataset hits of the same entity into one entity,
// keeping the best score and the order of first appearance.
func mergeHits(m *domain.Model, hits []domain.BackendHit) ([]domain.Entity, map[string]float64) {
	var order []string
	merged := make(map[string]*domain.Entity)
	scores := make(map[string]float64)
	for i := range hits {
		h := &hits[i]
		id := h.Entity.ID
		if e, ok := merged[id]; ok {
			e.Merge(m, &h.Entity)
			scores[id] = max(scores[id], h.Score)
			continue
		}
		merged[id] = h.Entity.Clone()
		scores[id] = h.Score
		order = append(order, id)
	}
	out := make([]domain.Entity, 0, len(order))
	for _, id := range order {
		out = append(out, *merged[id])
	}
	return out, scores
}
