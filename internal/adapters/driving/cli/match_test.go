package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

func TestMatchCmd_Use(t *testing.T) {
	assert.Equal(t, "match [file]", matchCmd.Use)
}

func TestMatchCmd_FromStdin(t *testing.T) {
	cleanup, ts := setupTestServicesWith()
	defer cleanup()
	ts.matcher.results = []domain.MatchResult{{
		Key:   "query",
		Query: domain.Entity{ID: "query", Schema: "Person"},
		Results: []domain.ScoredEntity{
			{Entity: putin(), Score: 0.93, Match: true},
		},
	}}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetIn(strings.NewReader(`{"schema": "Person", "properties": {"name": "Vladimir Putin", "birthDate": ["1952-10-07"]}}`))
	rootCmd.SetArgs([]string{"match"})

	require.NoError(t, rootCmd.Execute())

	require.Len(t, ts.matcher.lastQuery, 1)
	q := ts.matcher.lastQuery[0]
	assert.Equal(t, "query", q.Key)
	assert.Equal(t, "Person", q.Entity.Schema)
	assert.Equal(t, []string{"Vladimir Putin"}, q.Entity.Get("name"))
	assert.Equal(t, []string{"1952-10-07"}, q.Entity.Get("birthDate"))

	out := buf.String()
	assert.Contains(t, out, "query (Person)")
	assert.Contains(t, out, "0.930  Vladimir Putin (Person) Q7747")
}

func TestMatchCmd_BatchFile(t *testing.T) {
	cleanup, ts := setupTestServicesWith()
	defer cleanup()

	path := filepath.Join(t.TempDir(), "queries.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"queries": {
		"b": {"schema": "Company", "properties": {"name": ["Rosneft"]}},
		"a": {"schema": "Person", "properties": {"name": ["Putin"]}}
	}}`), 0644))

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"match", path})

	require.NoError(t, rootCmd.Execute())

	require.Len(t, ts.matcher.lastQuery, 2)
	assert.Equal(t, "a", ts.matcher.lastQuery[0].Key)
	assert.Equal(t, "b", ts.matcher.lastQuery[1].Key)
	assert.Contains(t, buf.String(), "No matches found.")
}

func TestMatchCmd_Options(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cleanup, ts := setupTestServicesWith()
		defer cleanup()

		rootCmd.SetOut(new(bytes.Buffer))
		rootCmd.SetIn(strings.NewReader(`{"schema": "Person", "properties": {"name": "x"}}`))
		rootCmd.SetArgs([]string{"match"})
		require.NoError(t, rootCmd.Execute())

		assert.Equal(t, domain.MatchOptions{Algorithm: "logic-v1", Limit: 5, Threshold: 0.7, Cutoff: 0.5}, ts.matcher.lastOpts)
	})

	t.Run("flags", func(t *testing.T) {
		cleanup, ts := setupTestServicesWith()
		defer cleanup()

		rootCmd.SetOut(new(bytes.Buffer))
		rootCmd.SetIn(strings.NewReader(`{"schema": "Person", "properties": {"name": "x"}}`))
		rootCmd.SetArgs([]string{"match", "-d", "sanctions", "-a", "name-based", "-n", "3", "--threshold", "0", "--fuzzy"})
		require.NoError(t, rootCmd.Execute())

		opts := ts.matcher.lastOpts
		assert.Equal(t, "sanctions", opts.Scope)
		assert.Equal(t, "name-based", opts.Algorithm)
		assert.Equal(t, 3, opts.Limit)
		assert.Zero(t, opts.Threshold, "an explicit zero threshold is kept")
		assert.True(t, opts.Fuzzy)
	})
}

func TestMatchCmd_JSON(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetIn(strings.NewReader(`{"id": "p1", "schema": "Person", "properties": {"name": "x"}}`))
	rootCmd.SetArgs([]string{"match", "--json"})

	require.NoError(t, rootCmd.Execute())

	var results []domain.MatchResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "p1", results[0].Key)
}

func TestMatchCmd_ItemError(t *testing.T) {
	cleanup, ts := setupTestServicesWith()
	defer cleanup()
	ts.matcher.results = []domain.MatchResult{{Key: "query", Err: domain.ErrNotFound}}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetIn(strings.NewReader(`{"schema": "Person", "properties": {"name": "x"}}`))
	rootCmd.SetArgs([]string{"match"})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), domain.ErrNotFound.Error())

	buf.Reset()
	rootCmd.SetIn(strings.NewReader(`{"schema": "Person", "properties": {"name": "x"}}`))
	rootCmd.SetArgs([]string{"match", "--json"})
	require.NoError(t, rootCmd.Execute())

	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, domain.ErrNotFound.Error(), out[0]["error"])
}

func TestParseQueries(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		keys    []string
		wantErr bool
	}{
		{"single entity", `{"schema": "Person", "properties": {"name": "a"}}`, []string{"query"}, false},
		{"single entity with id", `{"id": "e1", "schema": "Person"}`, []string{"e1"}, false},
		{"batch", `{"queries": {"x": {"schema": "Person"}, "w": {"schema": "Vessel"}}}`, []string{"w", "x"}, false},
		{"no schema", `{"properties": {"name": "a"}}`, nil, true},
		{"batch item without schema", `{"queries": {"x": {"properties": {}}}}`, nil, true},
		{"not json", `schema: Person`, nil, true},
		{"numeric value", `{"schema": "Person", "properties": {"name": 5}}`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queries, err := parseQueries([]byte(tt.input))
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			keys := make([]string, len(queries))
			for i, q := range queries {
				keys[i] = q.Key
				assert.Equal(t, q.Key, q.Entity.ID)
			}
			assert.Equal(t, tt.keys, keys)
		})
	}
}

func TestMatchCmd_MissingFile(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"match", filepath.Join(t.TempDir(), "missing.json")})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read input")
}
