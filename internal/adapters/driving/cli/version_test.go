package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/sercha-match/internal/adapters/driving/mcp"
	"github.com/custodia-labs/sercha-match/internal/app"
)

func TestVersionCmd_Use(t *testing.T) {
	assert.Equal(t, "version", versionCmd.Use)
}

func TestVersionCmd_Short(t *testing.T) {
	assert.Equal(t, "Print the build version", versionCmd.Short)
}

func TestVersionCmd_Executes(t *testing.T) {
	// Save and restore version
	originalVersion := version
	version = "test-version-1.0.0"
	defer func() { version = originalVersion }()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"version"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "sercha-match test-version-1.0.0 (go")
}

func TestVersionCmd_DoesNotOpenIndex(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	matcher = nil

	opened := false
	openApp = func(string) (*app.App, error) {
		opened = true
		return nil, errors.New("should not be called")
	}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"version"})

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.False(t, opened)
}

func TestSetVersion(t *testing.T) {
	originalVersion, originalMCP := version, mcp.Version
	defer func() { version, mcp.Version = originalVersion, originalMCP }()

	SetVersion("1.2.3")
	assert.Equal(t, "1.2.3", version)
	assert.Equal(t, "1.2.3", mcp.Version)

	SetVersion("")
	assert.Equal(t, "1.2.3", version, "empty version is ignored")
}
