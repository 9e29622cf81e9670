package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driven"
)

// Ensure AuditLog implements the interface.
var _ driven.AuditLog = (*AuditLog)(nil)

// AuditLog is an in-memory implementation of driven.AuditLog.
type AuditLog struct {
	mu     sync.RWMutex
	events []domain.AuditEvent
	nextID int64
}

// NewAuditLog creates an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// Record appends an event.
func (a *AuditLog) Record(_ context.Context, event domain.AuditEvent) error {
	if event.Event == "" {
		return fmt.Errorf("%w: audit event without type", domain.ErrInvalidInput)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	event.ID = a.nextID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	a.events = append(a.events, event)
	return nil
}

// List returns up to limit events, newest first. A non-positive limit
// returns everything.
func (a *AuditLog) List(_ context.Context, limit int) ([]domain.AuditEvent, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n := len(a.events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.AuditEvent, 0, n)
	for i := len(a.events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, a.events[i])
	}
	return out, nil
}

// Prune keeps the most recent 'keep' events.
func (a *AuditLog) Prune(_ context.Context, keep int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if keep < 0 {
		keep = 0
	}
	if len(a.events) > keep {
		a.events = append([]domain.AuditEvent(nil), a.events[len(a.events)-keep:]...)
	}
	return nil
}
