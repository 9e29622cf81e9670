package driving

import (
	"context"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

// StatusService reports health and freshness.
type StatusService interface {
	// Live reports the process is up.
	Live(ctx context.Context) error

	// Ready reports a complete generation is aliased and the backend answers.
	Ready(ctx context.Context) error

	// Status compares upstream versions with the index.
	Status(ctx context.Context) (*domain.CatalogStatus, error)

	// AuditLog returns recent index events, newest first.
	AuditLog(ctx context.Context, limit int) ([]domain.AuditEvent, error)
}
