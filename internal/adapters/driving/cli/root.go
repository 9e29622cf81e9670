// Package cli implements the sercha-match command line.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-match/internal/app"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-match/internal/logger"
)

var (
	configPath string
	verbose    bool
)

// Services used by the commands. They are wired from the settings
// before a command runs, unless already set.
var (
	matcher        driving.Matcher
	searchService  driving.SearchService
	statusService  driving.StatusService
	indexManager   driving.IndexManager
	catalogService driving.CatalogService

	// application is the wired process, needed by serve.
	application *app.App
)

// openApp builds the application for a settings file.
var openApp = func(path string) (*app.App, error) {
	settings, err := app.LoadSettings(path)
	if err != nil {
		return nil, err
	}
	return app.New(settings)
}

// annotationIndex marks commands that work on the local index.
const annotationIndex = "index"

// usesIndex is the annotation set of those commands.
var usesIndex = map[string]string{annotationIndex: "true"}

var rootCmd = &cobra.Command{
	Use:   "sercha-match",
	Short: "Entity screening against sanctions and watch lists",
	Long: `sercha-match indexes entity datasets listed in a manifest and scores
example entities against them.

Run "sercha-match serve" for the HTTP API, or use the match and search
commands against the local index.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if verbose {
			logger.SetVerbose(true)
		}
		if !needsServices(cmd) {
			return nil
		}
		return loadServices()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "settings file (default ~/.sercha-match/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// needsServices reports whether cmd works on the local index.
func needsServices(cmd *cobra.Command) bool {
	if cmd.Annotations[annotationIndex] != "true" {
		return false
	}
	return cmd != reindexCmd || reindexRemote == ""
}

// loadServices wires the services from the settings file once.
func loadServices() error {
	if matcher != nil && searchService != nil && statusService != nil && indexManager != nil {
		return nil
	}
	a, err := openApp(configPath)
	if err != nil {
		return err
	}
	application = a
	matcher = a.Matcher
	searchService = a.Search
	statusService = a.Status
	indexManager = a.Indexer
	catalogService = a.Catalog
	return nil
}

// Execute runs the root command and releases the application.
// Cancelling ctx stops long running commands such as serve.
func Execute(ctx context.Context) error {
	defer closeApp()
	return rootCmd.ExecuteContext(ctx)
}

func closeApp() {
	if application == nil {
		return
	}
	if err := application.Close(); err != nil {
		logger.Warn("Failed to close index: %v", err)
	}
	application = nil
}
