// Package tasks runs the background executor that drains the cleanup task
// queue left behind by entity drops.
package tasks

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/robfig/cron/v3"

	"icemeta/internal/domain"
)

// Handler processes one leased task. Returning an error leaves the task
// leased; it becomes available again after the lease times out.
type Handler func(ctx context.Context, task domain.Entity) error

// Executor leases overdue tasks on a cron schedule and completes them.
type Executor struct {
	manager    domain.MetastoreManager
	logger     *slog.Logger
	cron       *cron.Cron
	executorID string
	schedule   string
	batchSize  int

	mu       sync.Mutex
	handlers map[domain.TaskType]Handler
}

// NewExecutor builds an executor identified by the host and pid, with the
// default handler for entity-cleanup tasks registered.
func NewExecutor(manager domain.MetastoreManager, logger *slog.Logger, schedule string) *Executor {
	host, _ := os.Hostname()
	e := &Executor{
		manager:    manager,
		logger:     logger,
		cron:       cron.New(),
		executorID: host + "-" + strconv.Itoa(os.Getpid()),
		schedule:   schedule,
		batchSize:  20,
		handlers:   make(map[domain.TaskType]Handler),
	}
	e.Register(domain.TaskTypeEntityCleanupScheduler, e.handleEntityCleanup)
	return e
}

// Register installs a handler for a task type, replacing any previous one.
func (e *Executor) Register(typ domain.TaskType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = h
}

// Start schedules the executor. The first run happens at the first tick of
// the schedule, not immediately.
func (e *Executor) Start() error {
	_, err := e.cron.AddFunc(e.schedule, func() {
		e.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}
	e.cron.Start()
	e.logger.Info("task executor started", "executor_id", e.executorID, "schedule", e.schedule)
	return nil
}

// Stop stops the cron scheduler. Running jobs finish.
func (e *Executor) Stop() {
	e.cron.Stop()
	e.logger.Info("task executor stopped", "executor_id", e.executorID)
}

// RunOnce leases a batch of available tasks and processes each one. Tasks
// whose handler succeeds are removed from the queue.
func (e *Executor) RunOnce(ctx context.Context) {
	result := e.manager.LoadTasks(ctx, e.executorID, e.batchSize)
	if !result.IsSuccess() {
		e.logger.Warn("task lease failed", "status", result.Status.String(), "detail", result.ExtraInformation)
		return
	}
	for _, task := range result.Entities {
		e.process(ctx, task)
	}
}

func (e *Executor) process(ctx context.Context, task domain.Entity) {
	typ := taskType(&task)
	e.mu.Lock()
	handler := e.handlers[typ]
	e.mu.Unlock()
	if handler == nil {
		e.logger.Warn("no handler for task", "task", task.Name, "task_type", int(typ))
		return
	}
	if err := handler(ctx, task); err != nil {
		e.logger.Error("task failed", "task", task.Name, "error", err)
		return
	}
	drop := e.manager.DropEntityIfExists(ctx, nil, task, nil, false)
	if !drop.IsSuccess() && drop.Status != domain.StatusEntityNotFound {
		e.logger.Warn("could not remove completed task", "task", task.Name, "status", drop.Status.String())
		return
	}
	e.logger.Info("task completed", "task", task.Name)
}

// handleEntityCleanup logs the entity the task carries. Removing data files
// is the catalog frontend's job; the metastore only retires the queue entry.
func (e *Executor) handleEntityCleanup(ctx context.Context, task domain.Entity) error {
	var dropped domain.Entity
	if data := taskProperty(&task, domain.TaskDataProperty); data != "" {
		if err := json.Unmarshal([]byte(data), &dropped); err != nil {
			return err
		}
	}
	e.logger.Info("entity cleanup",
		"task", task.Name,
		"entity_type", dropped.TypeCode.String(),
		"entity_name", dropped.Name,
		"entity_id", dropped.ID)
	return nil
}

func taskType(task *domain.Entity) domain.TaskType {
	props, err := task.PropertiesMap()
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(props[domain.TaskTypeProperty])
	return domain.TaskType(n)
}

func taskProperty(task *domain.Entity, key string) string {
	props, err := task.PropertiesMap()
	if err != nil {
		return ""
	}
	return props[key]
}
