package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-match/internal/adapters/driving/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server so AI assistants can screen
entities against the local index.

By default, the server communicates over stdio using JSON-RPC. Use --port
to start an HTTP server instead, for the MCP Inspector or remote access.
"sercha-match serve" also exposes MCP on /mcp next to the HTTP API.

Examples:
  # Stdio mode (default)
  sercha-match mcp serve

  # HTTP mode
  sercha-match mcp serve --port 8080

Client configuration:
  {
    "mcpServers": {
      "sercha-match": {
        "command": "/path/to/sercha-match",
        "args": ["mcp", "serve"]
      }
    }
  }`,
	Annotations: usesIndex,
	RunE:        runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}

	ports := &mcp.Ports{
		Matcher: matcher,
		Search:  searchService,
		Status:  statusService,
	}

	server, err := mcp.NewServer(ports)
	if err != nil {
		return err
	}

	if port > 0 {
		addr := fmt.Sprintf(":%d", port)
		fmt.Fprintf(cmd.OutOrStdout(), "MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(cmd.Context(), addr)
	}

	return server.Run(cmd.Context())
}
