package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

func TestSearchCmd_Use(t *testing.T) {
	assert.Equal(t, "search [query]", searchCmd.Use)
}

func TestSearchCmd_RequiresExactlyOneArg(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"search"})

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestSearchCmd_HasLimitFlag(t *testing.T) {
	flag := searchCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "limit flag should exist")
	assert.Equal(t, "n", flag.Shorthand)
	assert.Equal(t, "10", flag.DefValue)
}

func TestSearchCmd_ExecutesWithQuery(t *testing.T) {
	cleanup, ts := setupTestServicesWith()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "putin"})

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Results 1-1 of 1:")
	assert.Contains(t, buf.String(), "[1] Vladimir Putin (Person) Q7747")
	assert.Contains(t, buf.String(), "us_ofac_sdn")
	assert.Equal(t, "", ts.search.lastOpts.Scope)
}

func TestSearchCmd_PassesOptions(t *testing.T) {
	cleanup, ts := setupTestServicesWith()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "-d", "sanctions", "--schema", "Person", "-n", "25", "--offset", "5", "putin"})

	require.NoError(t, rootCmd.Execute())

	assert.Equal(t, domain.SearchOptions{Scope: "sanctions", Schema: "Person", Limit: 25, Offset: 5}, ts.search.lastOpts)
	assert.Contains(t, buf.String(), "[6] Vladimir Putin")
}

func TestSearchCmd_FiltersAndFacets(t *testing.T) {
	cleanup, ts := setupTestServicesWith()
	defer cleanup()
	ts.search.response = &domain.SearchResponse{
		Results: []domain.SearchResult{{Entity: putin(), Score: 3}},
		Total:   1,
		Facets: map[string][]domain.FacetValue{
			domain.FacetCountries: {{Name: "ru", Count: 1}},
			domain.FacetSchema:    {{Name: "Person", Count: 1}},
		},
	}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "--country", "ru,by", "--topic", "sanction", "--facets", "putin"})

	require.NoError(t, rootCmd.Execute())

	assert.Equal(t, []string{"ru", "by"}, ts.search.lastOpts.Countries)
	assert.Equal(t, []string{"sanction"}, ts.search.lastOpts.Topics)
	assert.Contains(t, buf.String(), "countries: ru (1)")
	assert.NotContains(t, buf.String(), "Person (1)")
}

func TestSearchCmd_JSON(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "--json", "putin"})

	require.NoError(t, rootCmd.Execute())

	var resp domain.SearchResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Q7747", resp.Results[0].Entity.ID)
}

func TestSearchCmd_NoResults(t *testing.T) {
	cleanup, ts := setupTestServicesWith()
	defer cleanup()
	ts.search.response = &domain.SearchResponse{}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "nobody"})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "No results found.")
}

func TestSearchCmd_Errors(t *testing.T) {
	t.Run("service error", func(t *testing.T) {
		cleanup, ts := setupTestServicesWith()
		defer cleanup()
		ts.search.err = domain.ErrIndexNotReady

		buf := new(bytes.Buffer)
		rootCmd.SetOut(buf)
		rootCmd.SetErr(buf)
		rootCmd.SetArgs([]string{"search", "putin"})

		err := rootCmd.Execute()
		assert.ErrorIs(t, err, domain.ErrIndexNotReady)
		assert.Contains(t, err.Error(), "search failed")
	})

	t.Run("not configured", func(t *testing.T) {
		err := runSearchWithoutService()
		assert.EqualError(t, err, "search service not configured")
	})
}

func runSearchWithoutService() error {
	old := searchService
	searchService = nil
	defer func() { searchService = old }()
	return runSearch(searchCmd, []string{"putin"})
}

func TestCaption(t *testing.T) {
	e := domain.Entity{ID: "x"}
	assert.Equal(t, "x", caption(&e))

	e.Add("name", "Rosneft")
	assert.Equal(t, "Rosneft", caption(&e))

	e.Caption = "PJSC Rosneft"
	assert.Equal(t, "PJSC Rosneft", caption(&e))
}
