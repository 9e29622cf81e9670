// Package watch triggers index updates when local manifest or dataset
// files change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-match/internal/logger"
)

// DefaultDebounce collects bursts of writes, such as a file being
// copied in chunks, into one update.
const DefaultDebounce = 2 * time.Second

// ErrClosed is returned when the watcher was closed.
var ErrClosed = errors.New("watcher closed")

// Watcher runs an index update after watched files change.
// Directories are watched rather than the files themselves so that
// files replaced by rename keep being observed.
type Watcher struct {
	indexer  driving.IndexManager
	debounce time.Duration
	fs       *fsnotify.Watcher

	mu    sync.Mutex
	files map[string]bool
	dirs  map[string]bool

	// updated receives each outcome, for tests.
	updated func(*domain.BuildOutcome, error)
}

// New creates a watcher. A non-positive debounce uses DefaultDebounce.
func New(indexer driving.IndexManager, debounce time.Duration) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		indexer:  indexer,
		debounce: debounce,
		fs:       fs,
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
	}, nil
}

// Add watches a file.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.dirs[dir] {
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.dirs[dir] = true
	}
	w.files[abs] = true
	logger.Debug("Watching %s", abs)
	return nil
}

// Files returns the watched files, sorted.
func (w *Watcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]string, 0, len(w.files))
	for f := range w.files {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Run processes file events until ctx is cancelled or the watcher is
// closed. Updates run on the caller's goroutine, one at a time.
func (w *Watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fs.Events:
			if !ok {
				return ErrClosed
			}
			if !w.relevant(event) {
				continue
			}
			logger.Debug("File change: %s", event)
			if pending {
				timer.Stop()
			}
			timer.Reset(w.debounce)
			pending = true

		case err, ok := <-w.fs.Errors:
			if !ok {
				return ErrClosed
			}
			logger.Warn("File watcher error: %v", err)

		case <-timer.C:
			pending = false
			w.update(ctx)
		}
	}
}

func (w *Watcher) update(ctx context.Context) {
	logger.Info("Watched files changed, checking index")
	outcome, err := w.indexer.Update(ctx, false)
	switch {
	case err != nil:
		logger.Warn("Update after file change failed: %v", err)
	default:
		logger.Info("Update after file change: %s", outcome.Status)
	}
	if w.updated != nil {
		w.updated(outcome, err)
	}
}

// relevant reports whether an event touches a watched file.
// Attribute changes are ignored.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[filepath.Clean(event.Name)]
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// LocalPaths returns the local files behind a manifest location and
// the entity and delta resources of the catalog's loadable datasets.
// Remote locations are skipped.
func LocalPaths(manifest string, catalog *domain.ResolvedCatalog) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(location string) {
		p, ok := localPath(location)
		if ok && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	add(manifest)
	if catalog != nil {
		for _, ds := range catalog.Loadable() {
			add(ds.EntitiesURL)
			add(ds.DeltaURL)
		}
	}
	sort.Strings(out)
	return out
}

func localPath(location string) (string, bool) {
	if location == "" {
		return "", false
	}
	u, err := url.Parse(location)
	if err != nil {
		return location, true
	}
	switch u.Scheme {
	case "":
		return location, true
	case "file":
		return u.Path, u.Path != ""
	default:
		// Windows drive letters parse as a scheme
		if len(u.Scheme) == 1 {
			return location, true
		}
		return "", false
	}
}
