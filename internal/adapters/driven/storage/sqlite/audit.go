package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driven"
)

// auditLog stores index lifecycle events.
type auditLog struct {
	store *Store
}

var _ driven.AuditLog = (*auditLog)(nil)

// Record appends an event. A zero timestamp is set to now.
func (a *auditLog) Record(ctx context.Context, event domain.AuditEvent) error {
	if event.Event == "" {
		return fmt.Errorf("%w: audit event without type", domain.ErrInvalidInput)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_, err := a.store.db.ExecContext(ctx, `
		INSERT INTO audit_log (timestamp, event, index_name, message) VALUES (?, ?, ?, ?)
	`, formatTime(event.Timestamp), event.Event, nullString(event.Index), nullString(event.Message))
	if err != nil {
		return fmt.Errorf("recording %s: %w", event.Event, err)
	}
	return nil
}

// List returns up to limit events, newest first.
func (a *auditLog) List(ctx context.Context, limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := a.store.db.QueryContext(ctx, `
		SELECT id, timestamp, event, index_name, message
		FROM audit_log ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent //nolint:prealloc // size unknown from query
	for rows.Next() {
		var e domain.AuditEvent
		var ts string
		var index, message sql.NullString
		if err := rows.Scan(&e.ID, &ts, &e.Event, &index, &message); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		e.Timestamp = parseTime(ts)
		e.Index = index.String
		e.Message = message.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit log: %w", err)
	}
	return events, nil
}

// Prune keeps the most recent 'keep' events.
func (a *auditLog) Prune(ctx context.Context, keep int) error {
	_, err := a.store.db.ExecContext(ctx, `
		DELETE FROM audit_log WHERE id NOT IN (
			SELECT id FROM audit_log ORDER BY id DESC LIMIT ?
		)
	`, max(keep, 0))
	if err != nil {
		return fmt.Errorf("pruning audit log: %w", err)
	}
	return nil
}
