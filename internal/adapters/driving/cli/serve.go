package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-match/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/sercha-match/internal/adapters/driving/mcp"
	"github.com/custodia-labs/sercha-match/internal/logger"
)

// shutdownTimeout bounds the wait for in-flight requests on exit.
const shutdownTimeout = 15 * time.Second

var (
	serveListen string
	serveWatch  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves matching, search and status over HTTP and keeps the index up to
date in the background.

On start any incomplete generation left by a previous run is removed and
an update is started. Further updates run on the configured schedule, or
when local manifest and dataset files change with --watch.

The MCP endpoint is served on /mcp and Prometheus metrics on /metrics.`,
	Args:        cobra.NoArgs,
	Annotations: usesIndex,
	RunE:        runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "listen address (default from settings)")
	serveCmd.Flags().BoolVarP(&serveWatch, "watch", "w", false, "update when local files change")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if application == nil {
		return errors.New("application not configured")
	}
	a := application

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	mcpServer, err := mcp.NewServer(&mcp.Ports{
		Matcher: matcher,
		Search:  searchService,
		Status:  statusService,
	})
	if err != nil {
		return err
	}

	server, err := httpapi.NewServer(&httpapi.Ports{
		Matcher: matcher,
		Search:  searchService,
		Status:  statusService,
		Indexer: indexManager,
		Metrics: a.Metrics.Handler(),
		MCP:     mcpServer.Handler(),
	}, httpapi.Options{
		UpdateToken:  a.Settings.Server.UpdateToken,
		QueryTimeout: a.Settings.Server.QueryTimeout.Std(),
	})
	if err != nil {
		return err
	}

	addr := a.Settings.Server.Listen
	if serveListen != "" {
		addr = serveListen
	}
	if err := server.Start(addr); err != nil {
		return err
	}
	cmd.Printf("Listening on http://%s\n", server.Addr())
	if a.Settings.Server.UpdateToken == "" {
		logger.Warn("No update token configured, /updatez is disabled")
	}

	if err := indexManager.Cleanup(ctx); err != nil {
		logger.Warn("Cleanup of incomplete generations failed: %v", err)
	}
	var initial sync.WaitGroup
	initial.Add(1)
	go func() {
		defer initial.Done()
		outcome, err := indexManager.Update(ctx, false)
		if err != nil {
			logger.Warn("Initial update failed: %v", err)
			return
		}
		logger.Info("Initial update: %s", outcome.Status)
	}()

	scheduler, err := a.Scheduler(ctx)
	if err != nil {
		logger.Warn("Scheduler disabled: %v", err)
	} else if a.Settings.Index.AutoReindex {
		go func() {
			if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("Scheduler stopped: %v", err)
			}
		}()
		defer scheduler.Stop() //nolint:errcheck
	}

	if serveWatch || a.Settings.Index.Watch {
		watcher, err := a.Watcher(ctx)
		switch {
		case err != nil:
			logger.Warn("File watching disabled: %v", err)
		case watcher == nil:
			logger.Info("No local files to watch")
		default:
			defer watcher.Close()
			go func() {
				if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Debug("Watcher stopped: %v", err)
				}
			}()
		}
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-server.Err():
	}
	cancel()

	logger.Info("Shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("Shutdown: %v", err)
	}
	// The backend is closed after return
	initial.Wait()
	if serveErr != nil {
		return fmt.Errorf("server failed: %w", serveErr)
	}
	return nil
}
