package file

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

const tomlManifest = `
schedule = "30m"

[[catalogs]]
url = "https://data.example.org/datasets/latest/index.json"
scope = "sanctions"
optional = true

[[datasets]]
name = "local_pep"
title = "Local PEPs"
kind = "source"
entities_url = "data/pep.ndjson"
format = "ndjson"

[[datasets]]
name = "everything"
kind = "collection"
children = ["local_pep", "sanctions"]
load = false
`

const yamlManifest = `
catalogs:
  - url: https://data.example.org/datasets/latest/index.json
    scope: sanctions
datasets:
  - name: local_pep
    kind: source
    entities_url: data/pep.ndjson
    override: true
`

func writeManifest(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0600))
	return p
}

func TestManifestLoader_TOML(t *testing.T) {
	p := writeManifest(t, "manifest.toml", tomlManifest)

	m, err := NewManifestLoader(time.Second).LoadManifest(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, p, m.Location)
	assert.Equal(t, "30m", m.Schedule)
	require.Len(t, m.Catalogs, 1)
	assert.Equal(t, "sanctions", m.Catalogs[0].Scope)
	assert.True(t, m.Catalogs[0].Optional)

	require.Len(t, m.Datasets, 2)
	assert.Equal(t, "local_pep", m.Datasets[0].Name)
	assert.Equal(t, domain.KindSource, m.Datasets[0].Kind)
	assert.Nil(t, m.Datasets[0].Load)
	assert.Equal(t, p, m.Datasets[0].Origin)
	require.NotNil(t, m.Datasets[1].Load)
	assert.False(t, *m.Datasets[1].Load)
	assert.Equal(t, []string{"local_pep", "sanctions"}, m.Datasets[1].Children)
}

func TestManifestLoader_YAML(t *testing.T) {
	for _, name := range []string{"manifest.yaml", "manifest.yml"} {
		t.Run(name, func(t *testing.T) {
			p := writeManifest(t, name, yamlManifest)

			m, err := NewManifestLoader(time.Second).LoadManifest(context.Background(), "file://"+p)
			require.NoError(t, err)

			require.Len(t, m.Datasets, 1)
			assert.True(t, m.Datasets[0].Override)
			assert.Equal(t, "data/pep.ndjson", m.Datasets[0].EntitiesURL)
			require.Len(t, m.Catalogs, 1)
			assert.False(t, m.Catalogs[0].Optional)
		})
	}
}

func TestManifestLoader_EmptyYAML(t *testing.T) {
	p := writeManifest(t, "manifest.yml", "")

	m, err := NewManifestLoader(time.Second).LoadManifest(context.Background(), p)
	require.NoError(t, err)
	assert.Empty(t, m.Datasets)
}

func TestManifestLoader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		errText string
	}{
		{name: "unknown toml field", file: "m.toml", content: "[[datasets]]\nname = \"a\"\nurl = \"x\"\n", errText: "url"},
		{name: "unknown yaml field", file: "m.yaml", content: "datasets:\n  - name: a\n    colour: red\n", errText: "colour"},
		{name: "bad yaml", file: "m.yaml", content: "datasets: [\n", errText: "m.yaml"},
		{name: "unknown extension", file: "m.ini", content: "x=1", errText: "unknown format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeManifest(t, tt.file, tt.content)

			_, err := NewManifestLoader(time.Second).LoadManifest(context.Background(), p)

			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrConfig)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := NewManifestLoader(time.Second).LoadManifest(context.Background(), filepath.Join(t.TempDir(), "none.toml"))
		assert.ErrorIs(t, err, domain.ErrConfig)
	})
}

func TestManifestLoader_Remote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/manifest.yml":
			fmt.Fprint(w, yamlManifest)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	loader := NewManifestLoader(time.Second)

	m, err := loader.LoadManifest(context.Background(), server.URL+"/manifest.yml?rev=2")
	require.NoError(t, err)
	assert.Len(t, m.Datasets, 1)
	assert.Equal(t, server.URL+"/manifest.yml?rev=2", m.Location)

	_, err = loader.LoadManifest(context.Background(), server.URL+"/missing.toml")
	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
}
