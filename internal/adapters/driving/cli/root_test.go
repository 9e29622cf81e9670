package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-match/internal/app"
	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

func TestRootCmd_Use(t *testing.T) {
	assert.Equal(t, "sercha-match", rootCmd.Use)
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	config := rootCmd.PersistentFlags().Lookup("config")
	require.NotNil(t, config)
	assert.Equal(t, "c", config.Shorthand)

	verboseFlag := rootCmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "false", verboseFlag.DefValue)
}

func TestNeedsServices(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	tests := []struct {
		name   string
		cmd    func() bool
		expect bool
	}{
		{"status", func() bool { return needsServices(statusCmd) }, true},
		{"search", func() bool { return needsServices(searchCmd) }, true},
		{"serve", func() bool { return needsServices(serveCmd) }, true},
		{"mcp serve", func() bool { return needsServices(mcpServeCmd) }, true},
		{"version", func() bool { return needsServices(versionCmd) }, false},
		{"config show", func() bool { return needsServices(configShowCmd) }, false},
		{"local reindex", func() bool { return needsServices(reindexCmd) }, true},
		{"remote reindex", func() bool {
			reindexRemote = "http://localhost:8000"
			return needsServices(reindexCmd)
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.cmd())
		})
	}
}

func TestLoadServices_OpensApp(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	matcher, searchService, statusService, indexManager, catalogService = nil, nil, nil, nil, nil

	manifest := filepath.Join(t.TempDir(), "manifest.toml")
	require.NoError(t, os.WriteFile(manifest, []byte("datasets = []\n"), 0644))

	var gotPath string
	openApp = func(path string) (*app.App, error) {
		gotPath = path
		settings := domain.DefaultSettings()
		settings.Index.Backend = domain.BackendMemory
		settings.Index.Manifest = manifest
		return app.New(settings)
	}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"--config", "/tmp/sercha-test.toml", "audit-log"})

	err := rootCmd.Execute()
	defer closeApp()

	require.NoError(t, err)
	assert.Equal(t, "/tmp/sercha-test.toml", gotPath)
	assert.NotNil(t, application)
	assert.NotNil(t, matcher)
	assert.NotNil(t, catalogService)
	assert.Contains(t, buf.String(), "No events recorded.")
}

func TestLoadServices_Error(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	matcher = nil

	openApp = func(string) (*app.App, error) {
		return nil, domain.ConfigErrorf("bad settings")
	}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"status"})

	err := rootCmd.Execute()

	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestLoadServices_KeepsExisting(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	openApp = func(string) (*app.App, error) {
		return nil, errors.New("should not be called")
	}

	require.NoError(t, loadServices())
}

func TestCloseApp_Nil(t *testing.T) {
	old := application
	application = nil
	defer func() { application = old }()

	assert.NotPanics(t, closeApp)
}
