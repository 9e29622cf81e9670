package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-match/internal/logger"
)

var _ driving.Scheduler = (*Scheduler)(nil)

const (
	// auditRetention is the number of audit events kept by the prune task.
	auditRetention = 1000

	// historyRetention is the number of results kept per task.
	historyRetention = 100
)

// job is the work behind a task id. It returns the number of items
// it touched.
type job struct {
	name string
	run  func(context.Context) (int, error)
}

// Scheduler runs the index update and audit prune tasks on their
// intervals. Task state lives in the SchedulerStore so that the next
// run survives restarts.
type Scheduler struct {
	config  domain.SchedulerConfig
	store   driven.SchedulerStore
	indexer driving.IndexManager
	audit   driven.AuditLog
	jobs    map[string]job

	mu      sync.Mutex
	running bool
	busy    map[string]bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler. indexer and audit may be nil, in
// which case their task does nothing.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	indexer driving.IndexManager,
	audit driven.AuditLog,
) *Scheduler {
	s := &Scheduler{
		config:  config,
		store:   store,
		indexer: indexer,
		audit:   audit,
		busy:    make(map[string]bool),
	}
	s.jobs = map[string]job{
		domain.TaskIDIndexUpdate: {name: "Index Update", run: s.runIndexUpdate},
		domain.TaskIDAuditPrune: {name: "Audit Log Prune", run: func(ctx context.Context) (int, error) {
			return 0, s.runAuditPrune(ctx)
		}},
	}
	return s
}

// Start registers the enabled tasks and runs due ones on every tick.
// It blocks until ctx is done or Stop is called. A second Start while
// running returns nil at once.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stop := s.stopCh
	s.mu.Unlock()

	if err := s.registerTasks(ctx); err != nil {
		logger.Warn("scheduler: registering tasks: %v", err)
	}

	tick := s.config.Tick
	if tick <= 0 {
		tick = time.Minute
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	s.runDue(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// Stop ends the loop and waits for running tasks.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.running {
		s.running = false
		close(s.stopCh)
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Scheduler) registerTasks(ctx context.Context) error {
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		cfg := s.config.GetTaskConfig(id)
		if !cfg.Enabled {
			continue
		}
		if err := s.syncTask(ctx, id, s.jobs[id].name, cfg); err != nil {
			return err
		}
	}
	return nil
}

// syncTask stores a task or brings a stored one in line with cfg.
// A changed interval restarts the countdown.
func (s *Scheduler) syncTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now()
	switch {
	case task == nil:
		task = &domain.ScheduledTask{ID: id, Name: name, NextRun: now.Add(cfg.Interval)}
	case task.Interval != cfg.Interval:
		task.NextRun = now.Add(cfg.Interval)
	}
	task.Interval = cfg.Interval
	task.Enabled = cfg.Enabled

	return s.store.SaveTask(ctx, task)
}

// runDue dispatches every enabled task whose next run has passed.
func (s *Scheduler) runDue(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Warn("scheduler: listing tasks: %v", err)
		return
	}

	now := time.Now()
	for i := range tasks {
		if tasks[i].Enabled && !tasks[i].NextRun.After(now) {
			s.dispatch(ctx, &tasks[i])
		}
	}
}

// dispatch runs task in the background unless it is still busy from an
// earlier tick.
func (s *Scheduler) dispatch(ctx context.Context, task *domain.ScheduledTask) {
	j, ok := s.jobs[task.ID]
	if !ok {
		logger.Warn("scheduler: no job for task %s", task.ID)
		return
	}

	s.mu.Lock()
	if s.busy[task.ID] {
		s.mu.Unlock()
		logger.Debug("scheduler: %s still running, skipping", task.ID)
		return
	}
	s.busy[task.ID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.busy, task.ID)
			s.mu.Unlock()
		}()
		s.record(ctx, task, j)
	}()
}

// record runs j and stores the outcome on the task and in its history.
func (s *Scheduler) record(ctx context.Context, task *domain.ScheduledTask, j job) {
	result := &domain.TaskResult{TaskID: task.ID, StartedAt: time.Now()}
	n, err := j.run(ctx)
	result.EndedAt = time.Now()
	result.ItemsProcessed = n

	if err != nil {
		result.Error = err.Error()
		task.LastError = result.Error
		logger.Warn("scheduler: %s failed: %v", task.ID, err)
	} else {
		result.Success = true
		task.LastError = ""
		task.LastSuccess = result.EndedAt
	}
	task.LastRun = result.StartedAt
	task.NextRun = result.EndedAt.Add(task.Interval)

	if err := s.store.SaveTask(ctx, task); err != nil {
		logger.Warn("scheduler: saving task %s: %v", task.ID, err)
	}
	if err := s.store.RecordResult(ctx, result); err != nil {
		logger.Warn("scheduler: recording result of %s: %v", task.ID, err)
	}
	if err := s.store.PruneHistory(ctx, historyRetention); err != nil {
		logger.Warn("scheduler: pruning history: %v", err)
	}
}

// runIndexUpdate checks the catalog and rebuilds the index when stale.
// It returns the number of datasets loaded or removed.
func (s *Scheduler) runIndexUpdate(ctx context.Context) (int, error) {
	if s.indexer == nil {
		return 0, nil
	}
	outcome, err := s.indexer.Update(ctx, false)
	if outcome == nil {
		return 0, err
	}
	changed := 0
	for _, p := range outcome.Plans {
		if p.Action != domain.ActionKeep {
			changed++
		}
	}
	return changed, err
}

func (s *Scheduler) runAuditPrune(ctx context.Context) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Prune(ctx, auditRetention)
}
