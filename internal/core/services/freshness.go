package services

import (
	"maps"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

// Tracker holds process-wide freshness state shared by the index
// manager, which writes it, and the status endpoints, which read it.
type Tracker struct {
	schedule time.Duration
	now      func() time.Time

	mu          sync.RWMutex
	lastCheck   time.Time
	lastSuccess time.Time
	lastError   string
	failures    map[string]string
}

// NewTracker creates a tracker. The catalog counts as fresh while the
// last check is at most two schedule intervals old.
func NewTracker(schedule time.Duration) *Tracker {
	return &Tracker{
		schedule: schedule,
		now:      time.Now,
		failures: make(map[string]string),
	}
}

// SetSchedule changes the interval freshness is judged against.
func (t *Tracker) SetSchedule(schedule time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.schedule = schedule
}

// RecordCheck marks the catalog as checked.
func (t *Tracker) RecordCheck() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastCheck = t.now()
}

// RecordOutcome stores a settled update. Dataset failures replace the
// previous set.
func (t *Tracker) RecordOutcome(outcome *domain.BuildOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = make(map[string]string, len(outcome.Failed))
	maps.Copy(t.failures, outcome.Failed)
	if outcome.Status == domain.BuildFailed {
		t.lastError = outcome.Error
		return
	}
	t.lastError = ""
	t.lastSuccess = t.now()
}

// RecordError stores an update that could not start, e.g. because the
// manifest did not resolve.
func (t *Tracker) RecordError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastError = err.Error()
}

// Failure returns the last load error of a dataset.
func (t *Tracker) Failure(dataset string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.failures[dataset]
}

// Fill copies tracker state into a status report.
func (t *Tracker) Fill(status *domain.CatalogStatus) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	status.LastCheck = t.lastCheck
	status.LastSuccess = t.lastSuccess
	status.LastError = t.lastError
	status.CatalogFresh = t.fresh()
}

// CatalogFresh reports whether the catalog was checked recently.
func (t *Tracker) CatalogFresh() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fresh()
}

func (t *Tracker) fresh() bool {
	if t.lastCheck.IsZero() {
		return false
	}
	if t.schedule <= 0 {
		return true
	}
	return t.now().Sub(t.lastCheck) <= 2*t.schedule
}
