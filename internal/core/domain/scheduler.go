package domain

import "time"

// Task IDs of the built-in periodic jobs.
const (
	TaskIDIndexUpdate = "index-update"
	TaskIDAuditPrune  = "audit-prune"
)

// ScheduledTask is the persisted state of a periodic job. It survives
// restarts so an update that is due runs right after start.
type ScheduledTask struct {
	ID       string
	Name     string
	Interval time.Duration
	Enabled  bool

	LastRun     time.Time
	NextRun     time.Time
	LastSuccess time.Time
	LastError   string
}

// TaskResult is one run of a task, kept as history.
type TaskResult struct {
	TaskID    string
	StartedAt time.Time
	EndedAt   time.Time
	Success   bool
	Error     string

	// ItemsProcessed counts datasets rebuilt or audit events removed.
	ItemsProcessed int
}

// SchedulerConfig enables tasks and sets their intervals.
type SchedulerConfig struct {
	Enabled bool

	// Tick is how often the scheduler looks for due tasks.
	Tick time.Duration

	TaskConfigs map[string]TaskConfig
}

// TaskConfig configures one task.
type TaskConfig struct {
	Enabled  bool
	Interval time.Duration
}

// GetTaskConfig returns the config of taskID, zero when absent.
func (c *SchedulerConfig) GetTaskConfig(taskID string) TaskConfig {
	return c.TaskConfigs[taskID]
}

// DefaultSchedulerConfig checks upstream hourly and prunes the audit
// log daily.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled: true,
		Tick:    time.Minute,
		TaskConfigs: map[string]TaskConfig{
			TaskIDIndexUpdate: {Enabled: true, Interval: time.Hour},
			TaskIDAuditPrune:  {Enabled: true, Interval: 24 * time.Hour},
		},
	}
}
