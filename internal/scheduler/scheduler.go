// Package scheduler runs the service's periodic housekeeping tasks: the
// notification retention cleanup and the metrics gauge refresh. The
// escalation sweep itself is owned by the engine, not by this scheduler.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/civicgrid/complaint-service/internal/config"
)

// TaskHandler defines the interface for scheduled task handlers
type TaskHandler interface {
	Execute(ctx context.Context) error
	Name() string
}

// ScheduledTask pairs a handler with its cron schedule and run bookkeeping.
type ScheduledTask struct {
	ID          string
	Schedule    string
	Handler     TaskHandler
	Enabled     bool
	LastRun     time.Time
	RunCount    int64
	ErrorCount  int64
	cronEntryID cron.EntryID
}

// Scheduler manages the periodic background tasks.
type Scheduler struct {
	cfg        *config.Config
	logger     *slog.Logger
	cron       *cron.Cron
	tasks      map[string]*ScheduledTask
	tasksMutex sync.RWMutex
	started    bool
}

// New creates an empty scheduler; tasks are registered with AddTask.
func New(cfg *config.Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		logger: logger,
		cron:   cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		tasks:  make(map[string]*ScheduledTask),
	}
}

// AddTask registers a task. Returns an error when the ID is already taken.
func (s *Scheduler) AddTask(task *ScheduledTask) error {
	s.tasksMutex.Lock()
	defer s.tasksMutex.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %s already exists", task.ID)
	}

	s.tasks[task.ID] = task
	return nil
}

// Start schedules every enabled task and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.tasksMutex.Lock()
	defer s.tasksMutex.Unlock()

	if s.started {
		return nil
	}

	for _, task := range s.tasks {
		if !task.Enabled {
			continue
		}
		task := task
		entryID, err := s.cron.AddFunc(task.Schedule, func() {
			s.executeTask(ctx, task)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule task %s: %w", task.ID, err)
		}
		task.cronEntryID = entryID

		s.logger.Debug("Task scheduled", "task_id", task.ID, "schedule", task.Schedule)
	}

	s.cron.Start()
	s.started = true
	s.logger.Info("Scheduler started", "tasks", len(s.tasks))
	return nil
}

// Stop stops the cron loop and waits for running tasks to finish. The mutex
// is released before draining so in-flight bookkeeping can complete.
func (s *Scheduler) Stop() {
	s.tasksMutex.Lock()
	if !s.started {
		s.tasksMutex.Unlock()
		return
	}
	s.started = false
	c := s.cron
	s.tasksMutex.Unlock()

	stopCtx := c.Stop()
	<-stopCtx.Done()

	s.logger.Info("Scheduler stopped")
}

// Tasks returns a snapshot of the registered tasks. Callers get copies so
// reads never race with run bookkeeping.
func (s *Scheduler) Tasks() []*ScheduledTask {
	s.tasksMutex.RLock()
	defer s.tasksMutex.RUnlock()

	tasks := make([]*ScheduledTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		snapshot := *task
		tasks = append(tasks, &snapshot)
	}
	return tasks
}

// ValidateSchedule validates a cron schedule expression with seconds field.
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(schedule)
	return err
}

func (s *Scheduler) executeTask(ctx context.Context, task *ScheduledTask) {
	taskCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	start := time.Now()
	s.tasksMutex.Lock()
	task.LastRun = start
	task.RunCount++
	s.tasksMutex.Unlock()

	s.logger.Debug("Executing scheduled task", "task_id", task.ID)

	if err := task.Handler.Execute(taskCtx); err != nil {
		s.tasksMutex.Lock()
		task.ErrorCount++
		s.tasksMutex.Unlock()
		s.logger.Error("Scheduled task failed",
			"task_id", task.ID,
			"error", err,
			"duration", time.Since(start))
		return
	}

	s.logger.Debug("Scheduled task completed",
		"task_id", task.ID,
		"duration", time.Since(start))
}
