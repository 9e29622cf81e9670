package driven

import (
	"context"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

// SchedulerStore keeps periodic task state next to the index, so the
// schedule carries over a restart.
type SchedulerStore interface {
	// GetTask returns nil, nil for an unknown task.
	GetTask(ctx context.Context, taskID string) (*domain.ScheduledTask, error)
	ListTasks(ctx context.Context) ([]domain.ScheduledTask, error)

	// SaveTask inserts or replaces by ID.
	SaveTask(ctx context.Context, task *domain.ScheduledTask) error
	DeleteTask(ctx context.Context, taskID string) error

	RecordResult(ctx context.Context, result *domain.TaskResult) error

	// GetTaskHistory returns the newest results first.
	GetTaskHistory(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error)

	// PruneHistory keeps the newest keep results of every task.
	PruneHistory(ctx context.Context, keep int) error
}
