// Package queue runs dialog-processing tasks in the background with a
// bounded worker pool, per-dialog mutual exclusion and bounded retries.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"dialog-processor/src/models"
	"dialog-processor/src/processor"
	"dialog-processor/src/rabbitmq"
	"dialog-processor/src/schemas"

	"github.com/google/uuid"
)

// Config bounds the queue's concurrency, pacing and failure handling.
type Config struct {
	MaxConcurrent    int
	DispatchInterval time.Duration
	TaskTimeout      time.Duration
	MaxRetries       int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:    5,
		DispatchInterval: 10 * time.Second,
		TaskTimeout:      300 * time.Second,
		MaxRetries:       3,
	}
}

type worker struct {
	task     *models.QueueTask
	cancel   context.CancelFunc
	deadline time.Time
}

// TaskQueue dispatches pending tasks to at most MaxConcurrent workers, never
// running two tasks for the same ResourceID at once. Failed tasks return to
// the back of the queue until their retry budget runs out.
type TaskQueue struct {
	cfg    Config
	proc   processor.Processor
	events rabbitmq.Publisher
	locks  *ResourceLockSet

	mu      sync.Mutex
	pending []*models.QueueTask
	tasks   map[string]*models.QueueTask
	active  map[string]*worker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTaskQueue creates a stopped queue. events may be nil.
func NewTaskQueue(cfg Config, proc processor.Processor, events rabbitmq.Publisher) *TaskQueue {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if cfg.DispatchInterval <= 0 {
		cfg.DispatchInterval = DefaultConfig().DispatchInterval
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultConfig().TaskTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskQueue{
		cfg:    cfg,
		proc:   proc,
		events: events,
		locks:  NewResourceLockSet(),
		tasks:  make(map[string]*models.QueueTask),
		active: make(map[string]*worker),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit enqueues a task at the back of the queue. The task's ResourceID is
// required; ID, status and retry budget are filled in here.
func (q *TaskQueue) Submit(task *models.QueueTask) error {
	if task == nil || task.ResourceID == "" {
		return models.ErrEmptyResourceID
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.MaxRetries == 0 {
		task.MaxRetries = q.cfg.MaxRetries
	}
	task.Status = models.TaskPending
	task.RetryCount = 0
	task.CreatedAt = time.Now()

	q.mu.Lock()
	if _, exists := q.tasks[task.ID]; exists {
		q.mu.Unlock()
		return fmt.Errorf("task %s already queued", task.ID)
	}
	q.tasks[task.ID] = task
	q.pending = append(q.pending, task)
	q.mu.Unlock()

	slog.Info("Task queued", "task_id", task.ID, "resource_id", task.ResourceID)
	q.publish(rabbitmq.Event{
		Kind:       "task.submitted",
		TaskID:     task.ID,
		ResourceID: task.ResourceID,
		SessionID:  task.SessionID,
		Status:     string(models.TaskPending),
	})
	return nil
}

// Start launches the dispatch loop.
func (q *TaskQueue) Start() {
	q.wg.Add(1)
	go q.run()
	slog.Info("Task queue started",
		"max_concurrent", q.cfg.MaxConcurrent,
		"dispatch_interval", q.cfg.DispatchInterval,
		"task_timeout", q.cfg.TaskTimeout)
}

// Stop halts dispatching and waits for in-flight workers to finish. Worker
// contexts are cancelled so well-behaved processors return promptly.
func (q *TaskQueue) Stop() {
	q.cancel()
	q.wg.Wait()
	slog.Info("Task queue stopped")
}

func (q *TaskQueue) run() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.warnOverdue()
			q.dispatchCycle()
		}
	}
}

// dispatchCycle starts as many pending tasks as the concurrency limit and
// the resource locks allow. Each queued task is looked at once per cycle;
// lock-contended tasks go back to the tail so the head never starves the
// rest of the queue.
func (q *TaskQueue) dispatchCycle() {
	var started []*models.QueueTask

	q.mu.Lock()
	budget := len(q.pending)
	for budget > 0 && len(q.pending) > 0 && len(q.active) < q.cfg.MaxConcurrent {
		budget--
		task := q.pending[0]
		q.pending = q.pending[1:]

		if !q.locks.TryAcquire(task.ResourceID) {
			q.pending = append(q.pending, task)
			continue
		}

		now := time.Now()
		task.Status = models.TaskProcessing
		task.StartedAt = &now

		taskCtx, cancel := context.WithTimeout(q.ctx, q.cfg.TaskTimeout)
		w := &worker{task: task, cancel: cancel, deadline: now.Add(q.cfg.TaskTimeout)}
		q.active[task.ID] = w

		q.wg.Add(1)
		go q.runTask(taskCtx, w)
		started = append(started, task)
	}
	q.mu.Unlock()

	for _, task := range started {
		slog.Info("Task started", "task_id", task.ID, "resource_id", task.ResourceID)
		q.publish(rabbitmq.Event{
			Kind:       "task.started",
			TaskID:     task.ID,
			ResourceID: task.ResourceID,
			SessionID:  task.SessionID,
			Status:     string(models.TaskProcessing),
		})
	}
}

func (q *TaskQueue) runTask(ctx context.Context, w *worker) {
	defer q.wg.Done()
	result, err := q.invoke(ctx, w.task)
	// Only the soft deadline turns a success into a failure; queue shutdown
	// cancels the same context and must not discard a finished task.
	if err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = models.NewTaskProcessingError(w.task.ResourceID, "task timed out", ctx.Err())
	}
	q.complete(w, result, err)
}

// invoke shields the queue from panicking processors; a panic is just
// another task failure.
func (q *TaskQueue) invoke(ctx context.Context, task *models.QueueTask) (result processor.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = models.NewTaskProcessingError(task.ResourceID, fmt.Sprintf("panic: %v", r), nil)
		}
	}()
	return q.proc.Process(ctx, task)
}

// complete releases the resource lock and the worker slot on every outcome,
// then either finishes the task or requeues it for another attempt.
func (q *TaskQueue) complete(w *worker, result processor.Result, taskErr error) {
	w.cancel()

	task := w.task
	now := time.Now()
	event := rabbitmq.Event{
		TaskID:     task.ID,
		ResourceID: task.ResourceID,
		SessionID:  task.SessionID,
	}

	q.mu.Lock()
	q.locks.Release(task.ResourceID)
	delete(q.active, task.ID)

	if taskErr == nil {
		task.Status = models.TaskCompleted
		task.CompletedAt = &now
		event.Kind = "task.completed"
	} else {
		task.RetryCount++
		task.LastError = taskErr.Error()
		if task.RetryCount <= task.MaxRetries {
			task.Status = models.TaskPending
			task.StartedAt = nil
			q.pending = append(q.pending, task)
			event.Kind = "task.retried"
		} else {
			task.Status = models.TaskFailed
			task.CompletedAt = &now
			event.Kind = "task.failed"
			event.Error = task.LastError
		}
	}
	event.Status = string(task.Status)
	attempt := task.RetryCount
	q.mu.Unlock()

	switch event.Kind {
	case "task.completed":
		slog.Info("Task completed",
			"task_id", task.ID, "resource_id", task.ResourceID, "result", result.Message)
	case "task.retried":
		slog.Warn("Task failed, requeued",
			"task_id", task.ID, "resource_id", task.ResourceID,
			"attempt", attempt, "error", taskErr)
	default:
		slog.Error("Task failed permanently",
			"task_id", task.ID, "resource_id", task.ResourceID,
			"attempts", attempt, "error", taskErr)
	}
	q.publish(event)
}

// warnOverdue logs tasks past their soft deadline. Their contexts are
// already cancelled by the deadline; this only surfaces processors that
// ignore cancellation.
func (q *TaskQueue) warnOverdue() {
	now := time.Now()
	q.mu.Lock()
	for _, w := range q.active {
		if now.After(w.deadline) {
			slog.Warn("Task overdue, context cancelled but worker still running",
				"task_id", w.task.ID, "resource_id", w.task.ResourceID,
				"overdue", now.Sub(w.deadline))
		}
	}
	q.mu.Unlock()
}

// Status returns a point-in-time snapshot with no side effects.
func (q *TaskQueue) Status() schemas.QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	status := schemas.QueueStatus{
		QueueSize:             len(q.pending),
		ActiveTasks:           len(q.active),
		ProcessingResourceIDs: make([]string, 0, len(q.active)),
		PendingTaskIDs:        make([]string, 0, len(q.pending)),
		ActiveTaskIDs:         make([]string, 0, len(q.active)),
		MaxConcurrentTasks:    q.cfg.MaxConcurrent,
	}
	for _, task := range q.pending {
		status.PendingTaskIDs = append(status.PendingTaskIDs, task.ID)
	}
	for id, w := range q.active {
		status.ActiveTaskIDs = append(status.ActiveTaskIDs, id)
		status.ProcessingResourceIDs = append(status.ProcessingResourceIDs, w.task.ResourceID)
	}
	sort.Strings(status.ActiveTaskIDs)
	sort.Strings(status.ProcessingResourceIDs)
	return status
}

// ClearPending cancels every queued task and reports how many were dropped.
// In-flight tasks are not interrupted.
func (q *TaskQueue) ClearPending() int {
	now := time.Now()

	q.mu.Lock()
	cleared := q.pending
	q.pending = nil
	for _, task := range cleared {
		task.Status = models.TaskCancelled
		task.CompletedAt = &now
	}
	q.mu.Unlock()

	if len(cleared) > 0 {
		slog.Info("Pending tasks cleared", "count", len(cleared))
		q.publish(rabbitmq.Event{Kind: "queue.cleared", Status: string(models.TaskCancelled)})
	}
	return len(cleared)
}

// Task returns a copy of the task with the given ID.
func (q *TaskQueue) Task(id string) (models.QueueTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	task, ok := q.tasks[id]
	if !ok {
		return models.QueueTask{}, false
	}
	return *task, true
}

func (q *TaskQueue) publish(event rabbitmq.Event) {
	if err := rabbitmq.PublishEvent(q.events, event); err != nil {
		slog.Warn("Event publish failed", "kind", event.Kind, "error", err)
	}
}
