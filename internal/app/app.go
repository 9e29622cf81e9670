// Package app wires the driven adapters into the core services.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-match/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-match/internal/adapters/driven/fetch"
	"github.com/custodia-labs/sercha-match/internal/adapters/driven/metrics"
	"github.com/custodia-labs/sercha-match/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-match/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/sercha-match/internal/adapters/driving/watch"
	"github.com/custodia-labs/sercha-match/internal/core/domain"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-match/internal/core/services"
	"github.com/custodia-labs/sercha-match/internal/logger"
)

// App holds the wired services of one process.
type App struct {
	Settings domain.Settings
	Model    *domain.Model

	Backend   driven.IndexBackend
	Audit     driven.AuditLog
	Fetcher   *fetch.Fetcher
	Manifests *file.ManifestLoader
	Metrics   *metrics.Recorder

	Tracker *services.Tracker
	Catalog *services.CatalogService
	Indexer *services.IndexManager
	Matcher *services.MatchService
	Search  *services.SearchService
	Status  *services.StatusService

	schedulerStore driven.SchedulerStore
}

// LoadSettings reads the settings file, or the default location when
// path is empty, and applies the log settings.
func LoadSettings(path string) (domain.Settings, error) {
	var store *file.SettingsStore
	if path != "" {
		store = file.NewSettingsStoreFile(path)
	} else {
		var err error
		if store, err = file.NewSettingsStore(""); err != nil {
			return domain.Settings{}, err
		}
	}

	settings, err := store.Load()
	if err != nil {
		return settings, err
	}
	if err := ConfigureLogging(settings.Log); err != nil {
		return settings, err
	}
	logger.Debug("Settings loaded from %s", store.Path())
	return settings, nil
}

// ConfigureLogging applies the log level and format.
// Verbose mode, once enabled, keeps debug output.
func ConfigureLogging(s domain.LogSettings) error {
	if s.Format != "" {
		if err := logger.SetFormat(s.Format); err != nil {
			return domain.ConfigErrorf("log.format: %v", err)
		}
	}
	if s.Level != "" && !logger.IsVerbose() {
		if err := logger.SetLevel(s.Level); err != nil {
			return domain.ConfigErrorf("log.level: %v", err)
		}
	}
	return nil
}

// New opens the backend and creates the services. It does not touch
// the network.
func New(settings domain.Settings) (*App, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		Settings:  settings,
		Model:     domain.DefaultModel(),
		Fetcher:   fetch.New(settings.Fetch),
		Manifests: file.NewManifestLoader(settings.Fetch.Timeout.Std()),
		Metrics:   metrics.NewRecorder(),
	}

	switch settings.Index.Backend {
	case domain.BackendMemory:
		a.Backend = memory.NewBackend(a.Model)
		a.Audit = memory.NewAuditLog()
		a.schedulerStore = memory.NewSchedulerStore()
	case domain.BackendSQLite:
		store, err := sqlite.NewStore(settings.Index.Path, a.Model)
		if err != nil {
			return nil, fmt.Errorf("open sqlite backend: %w", err)
		}
		logger.Debug("SQLite backend at %s", store.Path())
		a.Backend = store
		a.Audit = store.AuditLog()
		a.schedulerStore = store.SchedulerStore()
	default:
		return nil, domain.ConfigErrorf("unknown backend %q", settings.Index.Backend)
	}

	a.Tracker = services.NewTracker(settings.Index.Schedule.Std())
	a.Catalog = services.NewCatalogService(a.Manifests, a.Fetcher, settings.Index.Manifest)
	a.Indexer = services.NewIndexManager(
		a.Backend,
		a.Fetcher,
		a.Catalog,
		a.Tracker,
		a.Audit,
		a.Metrics,
		a.Model,
		settings.Index,
	)

	matcher, err := services.NewMatchService(
		a.Backend,
		a.Model,
		a.Metrics,
		settings.Index.Alias,
		settings.Match,
		settings.Server.MaxBatch,
	)
	if err != nil {
		a.Backend.Close()
		return nil, err
	}
	a.Matcher = matcher
	a.Search = services.NewSearchService(a.Backend, a.Model, a.Metrics, settings.Index.Alias, settings.Match)
	a.Status = services.NewStatusService(a.Catalog, a.Indexer, a.Backend, a.Tracker, a.Audit)

	return a, nil
}

// Scheduler creates the periodic update scheduler. A schedule set in
// the manifest replaces the configured one.
func (a *App) Scheduler(ctx context.Context) (*services.Scheduler, error) {
	interval := a.Settings.Index.Schedule.Std()

	manifest, err := a.Manifests.LoadManifest(ctx, a.Settings.Index.Manifest)
	if err != nil {
		return nil, err
	}
	if manifest.Schedule != "" {
		d, err := time.ParseDuration(manifest.Schedule)
		if err != nil || d <= 0 {
			return nil, domain.ConfigErrorf("manifest schedule %q is not a positive duration", manifest.Schedule)
		}
		logger.Info("Using manifest schedule %s", d)
		interval = d
	}

	config := domain.DefaultSchedulerConfig()
	config.Enabled = a.Settings.Index.AutoReindex
	config.TaskConfigs[domain.TaskIDIndexUpdate] = domain.TaskConfig{
		Enabled:  a.Settings.Index.AutoReindex,
		Interval: interval,
	}
	a.Tracker.SetSchedule(interval)

	return services.NewScheduler(config, a.schedulerStore, a.Indexer, a.Audit), nil
}

// Watcher creates a file watcher over the local manifest and dataset
// files. It returns nil when nothing local is referenced.
func (a *App) Watcher(ctx context.Context) (*watch.Watcher, error) {
	catalog, err := a.Catalog.Current(ctx)
	if err != nil {
		return nil, err
	}
	paths := watch.LocalPaths(a.Settings.Index.Manifest, catalog)
	if len(paths) == 0 {
		return nil, nil
	}

	w, err := watch.New(a.Indexer, watch.DefaultDebounce)
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, p := range paths {
		if err := w.Add(p); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn("Some files cannot be watched: %v", err)
	}
	return w, nil
}

// Close releases the worker pool and the backend.
func (a *App) Close() error {
	a.Matcher.Close()
	return a.Backend.Close()
}
