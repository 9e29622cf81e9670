package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMCPCmd_Structure(t *testing.T) {
	assert.Equal(t, "mcp", mcpCmd.Use)
	assert.Equal(t, "serve", mcpServeCmd.Use)
	assert.Contains(t, mcpCmd.Commands(), mcpServeCmd)
}

func TestMCPServeCmd_PortFlag(t *testing.T) {
	flag := mcpServeCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "p", flag.Shorthand)
	assert.Equal(t, "0", flag.DefValue)
}

func TestMCPServeCmd_RequiresMatcher(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	old := matcher
	matcher = nil
	defer func() { matcher = old }()

	err := runMCPServe(mcpServeCmd, nil)
	assert.Error(t, err)
}
