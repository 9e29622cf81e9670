package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-match/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-match/internal/core/domain"
	"github.com/custodia-labs/sercha-match/internal/normalize"
)

func newTestSearchService(t *testing.T) (*SearchService, *recordingMetrics) {
	t.Helper()
	metrics := newRecordingMetrics()
	return NewSearchService(seedIndex(t), domain.DefaultModel(), metrics, testAlias, testMatchSettings()), metrics
}

func searchIDs(resp *domain.SearchResponse) []string {
	ids := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		ids = append(ids, r.Entity.ID)
	}
	return ids
}

func TestSearchService_Search(t *testing.T) {
	svc, metrics := newTestSearchService(t)
	ctx := context.Background()

	t.Run("every word must match", func(t *testing.T) {
		resp, err := svc.Search(ctx, "vladimir putin", domain.SearchOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"p1"}, searchIDs(resp))
		assert.Equal(t, []string{"peps", "sanctions"}, resp.Results[0].Entity.Datasets)
		assert.Positive(t, resp.Results[0].Score)
	})

	t.Run("accents and case fold", func(t *testing.T) {
		resp, err := svc.Search(ctx, "ROSNÉFT", domain.SearchOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"c1"}, searchIDs(resp))
	})

	t.Run("scope", func(t *testing.T) {
		resp, err := svc.Search(ctx, "vladimir", domain.SearchOptions{Scope: "sanctions"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"p1", "p2"}, searchIDs(resp))
		assert.Equal(t, 2, resp.Total)

		resp, err = svc.Search(ctx, "petrov", domain.SearchOptions{Scope: "peps"})
		require.NoError(t, err)
		assert.Empty(t, resp.Results)
	})

	t.Run("schema filter includes descendants", func(t *testing.T) {
		resp, err := svc.Search(ctx, "", domain.SearchOptions{Schema: "Organization"})
		require.NoError(t, err)
		assert.Equal(t, []string{"c1"}, searchIDs(resp))
	})

	t.Run("empty query lists in id order", func(t *testing.T) {
		resp, err := svc.Search(ctx, "", domain.SearchOptions{Scope: "sanctions", Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"c1", "p1"}, searchIDs(resp))
		assert.Equal(t, 3, resp.Total)
		assert.Equal(t, 2, resp.Limit)

		resp, err = svc.Search(ctx, "", domain.SearchOptions{Scope: "sanctions", Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"p2"}, searchIDs(resp))
	})

	t.Run("limit is capped", func(t *testing.T) {
		resp, err := svc.Search(ctx, "", domain.SearchOptions{Limit: 10_000})
		require.NoError(t, err)
		assert.Equal(t, 50, resp.Limit)
	})

	assert.Positive(t, metrics.queries["search"])
}

func TestSearchService_SearchErrors(t *testing.T) {
	svc, _ := newTestSearchService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		opts domain.SearchOptions
		want error
	}{
		{"negative offset", domain.SearchOptions{Offset: -1}, domain.ErrInvalidInput},
		{"unknown schema", domain.SearchOptions{Schema: "Spaceship"}, domain.ErrInvalidInput},
		{"unknown scope", domain.SearchOptions{Scope: "nowhere"}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Search(ctx, "putin", tt.opts)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("index not ready", func(t *testing.T) {
		empty := NewSearchService(memory.NewBackend(nil), domain.DefaultModel(), nil, testAlias, testMatchSettings())
		_, err := empty.Search(ctx, "putin", domain.SearchOptions{})
		assert.ErrorIs(t, err, domain.ErrIndexNotReady)
	})

	t.Run("backend failure", func(t *testing.T) {
		backend := &failingBackend{IndexBackend: seedIndex(t), queryErr: errors.New("disk I/O error")}
		broken := NewSearchService(backend, domain.DefaultModel(), nil, testAlias, testMatchSettings())
		_, err := broken.Search(ctx, "putin", domain.SearchOptions{})
		assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	})
}

func TestSearchService_Entity(t *testing.T) {
	svc, _ := newTestSearchService(t)
	ctx := context.Background()

	e, err := svc.Entity(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Person", e.Schema)
	assert.Equal(t, []string{"peps", "sanctions"}, e.Datasets)
	assert.Contains(t, e.Get("position"), "President")
	assert.Contains(t, e.Get("nationality"), "ru")

	t.Run("former id resolves", func(t *testing.T) {
		e, err := svc.Entity(ctx, "old-p1")
		require.NoError(t, err)
		assert.Equal(t, "p1", e.ID)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := svc.Entity(ctx, "nope")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("empty id", func(t *testing.T) {
		_, err := svc.Entity(ctx, "")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestSearchService_FollowsAlias(t *testing.T) {
	backend := seedIndex(t)
	svc := NewSearchService(backend, domain.DefaultModel(), nil, testAlias, testMatchSettings())
	ctx := context.Background()

	resp, err := svc.Search(ctx, "petrov", domain.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	// Promote an empty generation; queries see it on the next call.
	next := domain.Generation{Name: testAlias + "-2", Alias: testAlias, Complete: true, Versions: map[string]string{}}
	require.NoError(t, backend.CreateIndex(ctx, next.Name))
	require.NoError(t, backend.PutGeneration(ctx, next))
	require.NoError(t, backend.PutAlias(ctx, testAlias, next.Name))

	resp, err = svc.Search(ctx, "petrov", domain.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

// seedRelations adds relation entities and topics to the seeded
// generation. o1 links p1 to c1 and both sanctions point at p1, one
// through its former ID.
func seedRelations(t *testing.T) *memory.Backend {
	t.Helper()
	ctx := context.Background()
	model := domain.DefaultModel()
	backend := seedIndex(t)

	doc := func(dataset string, e domain.Entity) domain.IndexOp {
		e.Datasets = []string{dataset}
		return domain.IndexOp{Type: domain.IndexReplace, Document: normalize.Document(model, dataset, &e)}
	}
	putin := person("p1", "Vladimir Putin", "birthDate", "1952-10-07", "nationality", "ru", "topics", "sanction")
	putin.Referents = []string{"old-p1"}
	pep := person("p1", "Vladimir Putin", "position", "President", "topics", "role.pep")
	ownership := domain.Entity{ID: "o1", Schema: "Ownership", Properties: map[string][]string{
		"owner": {"p1"}, "asset": {"c1"}, "percentage": {"50"},
	}}
	sanction := domain.Entity{ID: "s1", Schema: "Sanction", Properties: map[string][]string{
		"entity": {"old-p1"}, "authority": {"OFAC"},
	}}
	eu := domain.Entity{ID: "s2", Schema: "Sanction", Properties: map[string][]string{
		"entity": {"p1"}, "authority": {"EU Council"},
	}}
	require.NoError(t, backend.BulkWrite(ctx, testAlias+"-1", []domain.IndexOp{
		doc("sanctions", putin), doc("peps", pep),
		doc("sanctions", ownership), doc("sanctions", sanction), doc("sanctions", eu),
	}))
	return backend
}

func TestSearchService_SearchCountsEntities(t *testing.T) {
	svc, _ := newTestSearchService(t)
	ctx := context.Background()

	// p1 is stored once per dataset but pages and totals count it once.
	resp, err := svc.Search(ctx, "vladimir", domain.SearchOptions{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, searchIDs(resp))
	assert.Equal(t, []string{"peps", "sanctions"}, resp.Results[0].Entity.Datasets)
	assert.Equal(t, 2, resp.Total)

	resp, err = svc.Search(ctx, "vladimir", domain.SearchOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, searchIDs(resp))
	assert.Equal(t, 2, resp.Total)
}

func TestSearchService_Facets(t *testing.T) {
	svc := NewSearchService(seedRelations(t), domain.DefaultModel(), nil, testAlias, testMatchSettings())
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		resp, err := svc.Search(ctx, "vladimir", domain.SearchOptions{})
		require.NoError(t, err)
		assert.Equal(t, []domain.FacetValue{{Name: "ru", Count: 1}}, resp.Facets[domain.FacetCountries])
		assert.Equal(t, []domain.FacetValue{{Name: "sanctions", Count: 2}, {Name: "peps", Count: 1}},
			resp.Facets[domain.FacetDatasets])
		assert.Equal(t, []domain.FacetValue{{Name: "role.pep", Count: 1}, {Name: "sanction", Count: 1}},
			resp.Facets[domain.FacetTopics])
		assert.NotContains(t, resp.Facets, domain.FacetSchema)
	})

	t.Run("schema facet on request", func(t *testing.T) {
		resp, err := svc.Search(ctx, "", domain.SearchOptions{Facets: []string{domain.FacetSchema}})
		require.NoError(t, err)
		assert.Equal(t, []domain.FacetValue{
			{Name: "Person", Count: 2}, {Name: "Sanction", Count: 2},
			{Name: "Company", Count: 1}, {Name: "Ownership", Count: 1},
		}, resp.Facets[domain.FacetSchema])
		assert.Len(t, resp.Facets, 1)
	})

	t.Run("unknown facet", func(t *testing.T) {
		_, err := svc.Search(ctx, "", domain.SearchOptions{Facets: []string{"colour"}})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestSearchService_Filters(t *testing.T) {
	svc := NewSearchService(seedRelations(t), domain.DefaultModel(), nil, testAlias, testMatchSettings())
	ctx := context.Background()

	tests := []struct {
		name string
		opts domain.SearchOptions
		want []string
	}{
		{"country codes fold", domain.SearchOptions{Countries: []string{"RU"}}, []string{"p1"}},
		{"topic", domain.SearchOptions{Topics: []string{"role.pep"}}, []string{"p1"}},
		{"datasets narrow the scope", domain.SearchOptions{Datasets: []string{"peps"}}, []string{"p1"}},
		{"datasets outside the scope", domain.SearchOptions{Scope: "peps", Datasets: []string{"sanctions"}}, []string{}},
		{"no filter", domain.SearchOptions{}, []string{"p1", "p2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.Search(ctx, "vladimir", tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, searchIDs(resp))
			assert.Equal(t, len(tt.want), resp.Total)
		})
	}

	t.Run("entity references are not text", func(t *testing.T) {
		resp, err := svc.Search(ctx, "p1", domain.SearchOptions{})
		require.NoError(t, err)
		assert.Empty(t, resp.Results)
	})
}

func adjacentIDs(page domain.AdjacentPage) []string {
	ids := make([]string, 0, len(page.Results))
	for _, e := range page.Results {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestSearchService_Adjacent(t *testing.T) {
	svc := NewSearchService(seedRelations(t), domain.DefaultModel(), nil, testAlias, testMatchSettings())
	ctx := context.Background()

	t.Run("inbound through reverse names", func(t *testing.T) {
		resp, err := svc.Adjacent(ctx, "p1", domain.AdjacentOptions{})
		require.NoError(t, err)
		assert.Equal(t, "p1", resp.Entity.ID)
		assert.Len(t, resp.Adjacent, 2)
		assert.Equal(t, []string{"o1"}, adjacentIDs(resp.Adjacent["ownershipOwner"]))
		assert.Equal(t, []string{"s1", "s2"}, adjacentIDs(resp.Adjacent["sanctions"]))
		assert.Equal(t, 2, resp.Adjacent["sanctions"].Total)
	})

	t.Run("outbound through entity properties", func(t *testing.T) {
		resp, err := svc.Adjacent(ctx, "o1", domain.AdjacentOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"c1"}, adjacentIDs(resp.Adjacent["asset"]))
		owner := resp.Adjacent["owner"]
		require.Len(t, owner.Results, 1)
		assert.Equal(t, []string{"peps", "sanctions"}, owner.Results[0].Datasets)

		resp, err = svc.Adjacent(ctx, "c1", domain.AdjacentOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"o1"}, adjacentIDs(resp.Adjacent["ownershipAsset"]))
	})

	t.Run("one property paged", func(t *testing.T) {
		resp, err := svc.Adjacent(ctx, "p1", domain.AdjacentOptions{Property: "sanctions", Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Len(t, resp.Adjacent, 1)
		page := resp.Adjacent["sanctions"]
		assert.Equal(t, []string{"s2"}, adjacentIDs(page))
		assert.Equal(t, 2, page.Total)
		assert.Equal(t, 1, page.Limit)
	})

	t.Run("offset past the end", func(t *testing.T) {
		resp, err := svc.Adjacent(ctx, "o1", domain.AdjacentOptions{Property: "owner", Offset: 5})
		require.NoError(t, err)
		assert.Empty(t, resp.Adjacent["owner"].Results)
		assert.Equal(t, 1, resp.Adjacent["owner"].Total)
	})

	t.Run("scope", func(t *testing.T) {
		resp, err := svc.Adjacent(ctx, "p1", domain.AdjacentOptions{Scope: "peps"})
		require.NoError(t, err)
		assert.Empty(t, resp.Adjacent)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := svc.Adjacent(ctx, "p1", domain.AdjacentOptions{Property: "colour"})
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = svc.Adjacent(ctx, "nope", domain.AdjacentOptions{})
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = svc.Adjacent(ctx, "p1", domain.AdjacentOptions{Offset: -1})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}
