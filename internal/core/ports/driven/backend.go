package driven

import (
	"context"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

// IndexBackend is the search backend holding index generations.
// A generation is a physical index; the alias names the generation
// that queries read from. Repointing the alias must be atomic: a
// concurrent reader sees either the old or the new generation.
type IndexBackend interface {
	// CreateIndex creates an empty physical index.
	CreateIndex(ctx context.Context, index string) error

	// DeleteIndex drops a physical index and its metadata.
	DeleteIndex(ctx context.Context, index string) error

	// ListIndices returns physical index names starting with prefix, sorted.
	ListIndices(ctx context.Context, prefix string) ([]string, error)

	// BulkWrite applies a batch of operations to an index.
	BulkWrite(ctx context.Context, index string, ops []domain.IndexOp) error

	// CopyDataset copies every stored entity of a dataset between
	// indices and returns the number copied.
	CopyDataset(ctx context.Context, from, to, dataset string) (int, error)

	// DeleteDataset removes every stored entity of a dataset.
	DeleteDataset(ctx context.Context, index, dataset string) error

	// CountDataset returns the number of stored entities of a dataset.
	CountDataset(ctx context.Context, index, dataset string) (int, error)

	// PutGeneration stores the metadata of a physical index.
	PutGeneration(ctx context.Context, gen domain.Generation) error

	// GetGeneration reads the metadata of a physical index.
	// Returns domain.ErrNotFound if the index has none.
	GetGeneration(ctx context.Context, index string) (*domain.Generation, error)

	// GetAlias returns the physical index an alias points to.
	// Returns domain.ErrNotFound if the alias is unset.
	GetAlias(ctx context.Context, alias string) (string, error)

	// PutAlias atomically points an alias at a physical index.
	PutAlias(ctx context.Context, alias, index string) error

	// Query runs a candidate or search query against a physical index.
	Query(ctx context.Context, index string, q domain.BackendQuery) (*domain.BackendResult, error)

	// Ping checks the backend answers queries.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// AuditLog records index lifecycle events.
type AuditLog interface {
	// Record appends an event.
	Record(ctx context.Context, event domain.AuditEvent) error

	// List returns the most recent events, newest first.
	List(ctx context.Context, limit int) ([]domain.AuditEvent, error)

	// Prune keeps the most recent 'keep' events.
	Prune(ctx context.Context, keep int) error
}
