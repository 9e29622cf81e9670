package driving

import "context"

// Scheduler runs the periodic index update and audit pruning.
type Scheduler interface {
	// Start runs due tasks until ctx is done or Stop is called.
	Start(ctx context.Context) error

	// Stop ends the loop and waits for a running task.
	Stop() error
}
