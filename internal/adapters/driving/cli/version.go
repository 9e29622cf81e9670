package cli

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-match/internal/adapters/driving/mcp"
)

// version is set at build time through SetVersion.
var version = "dev"

// SetVersion records the build version for the version command and
// the MCP handshake. Empty values are ignored.
func SetVersion(v string) {
	if v == "" {
		return
	}
	version = v
	mcp.Version = v
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("sercha-match %s (%s, %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
