package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"dialog-processor/src/models"
	"dialog-processor/src/processor"
	"dialog-processor/src/rabbitmq"
)

// fakeProcessor records per-resource and overall concurrency while running
// scripted outcomes.
type fakeProcessor struct {
	mu         sync.Mutex
	concurrent map[string]int
	maxOverall int
	overlapped bool
	processed  int

	fail            error
	panicMode       bool
	gate            chan struct{}
	delay           time.Duration
	succeedOnCancel bool
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{concurrent: make(map[string]int)}
}

func (p *fakeProcessor) Process(ctx context.Context, task *models.QueueTask) (processor.Result, error) {
	p.mu.Lock()
	p.concurrent[task.ResourceID]++
	if p.concurrent[task.ResourceID] > 1 {
		p.overlapped = true
	}
	total := 0
	for _, n := range p.concurrent {
		total += n
	}
	if total > p.maxOverall {
		p.maxOverall = total
	}
	panicMode, gate, delay, fail := p.panicMode, p.gate, p.delay, p.fail
	succeedOnCancel := p.succeedOnCancel
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.concurrent[task.ResourceID]--
		p.processed++
		p.mu.Unlock()
	}()

	if panicMode {
		panic("processor exploded")
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			if succeedOnCancel {
				return processor.Result{Message: "ok"}, nil
			}
			return processor.Result{}, ctx.Err()
		}
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if fail != nil {
		return processor.Result{}, fail
	}
	return processor.Result{Message: "ok"}, nil
}

func (p *fakeProcessor) processedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed
}

// recordingPublisher captures published event kinds in order.
type recordingPublisher struct {
	mu    sync.Mutex
	kinds []string
}

func (r *recordingPublisher) Publish(exchange string, body []byte) error {
	var event rabbitmq.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, event.Kind)
	return nil
}

func (r *recordingPublisher) Close() {}

func (r *recordingPublisher) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.kinds...)
}

func testConfig() Config {
	return Config{
		MaxConcurrent:    5,
		DispatchInterval: 10 * time.Millisecond,
		TaskTimeout:      time.Second,
		MaxRetries:       3,
	}
}

func waitFor(t *testing.T, timeout time.Duration, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestSubmitRequiresResourceID(t *testing.T) {
	q := NewTaskQueue(testConfig(), newFakeProcessor(), nil)

	if err := q.Submit(&models.QueueTask{}); !errors.Is(err, models.ErrEmptyResourceID) {
		t.Fatalf("expected ErrEmptyResourceID, got %v", err)
	}
	if err := q.Submit(nil); !errors.Is(err, models.ErrEmptyResourceID) {
		t.Fatalf("expected ErrEmptyResourceID for nil task, got %v", err)
	}
}

func TestSameResourceNeverOverlaps(t *testing.T) {
	proc := newFakeProcessor()
	proc.delay = 5 * time.Millisecond
	q := NewTaskQueue(testConfig(), proc, nil)
	q.Start()
	defer q.Stop()

	var ids []string
	for i := 0; i < 10; i++ {
		task := &models.QueueTask{ResourceID: "D1"}
		if err := q.Submit(task); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		ids = append(ids, task.ID)
	}

	waitFor(t, 5*time.Second, "all tasks to finish", func() bool {
		return proc.processedCount() == 10
	})

	proc.mu.Lock()
	overlapped := proc.overlapped
	proc.mu.Unlock()
	if overlapped {
		t.Fatal("two tasks for the same resource ran concurrently")
	}
	for _, id := range ids {
		task, ok := q.Task(id)
		if !ok || task.Status != models.TaskCompleted {
			t.Fatalf("task %s not completed: %+v", id, task)
		}
	}
}

func TestDistinctResourcesRunConcurrently(t *testing.T) {
	proc := newFakeProcessor()
	proc.gate = make(chan struct{})
	q := NewTaskQueue(testConfig(), proc, nil)
	q.Start()
	defer q.Stop()

	resources := []string{"D1", "D2", "D3", "D4", "D5"}
	for _, r := range resources {
		if err := q.Submit(&models.QueueTask{ResourceID: r}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	waitFor(t, 5*time.Second, "all five tasks to start", func() bool {
		return q.Status().ActiveTasks == 5
	})

	status := q.Status()
	if status.QueueSize != 0 {
		t.Fatalf("expected empty queue, got %d", status.QueueSize)
	}
	if len(status.ProcessingResourceIDs) != 5 {
		t.Fatalf("expected 5 processing resources, got %v", status.ProcessingResourceIDs)
	}

	close(proc.gate)
	waitFor(t, 5*time.Second, "all tasks to finish", func() bool {
		return proc.processedCount() == 5
	})
}

func TestConcurrencyLimitHolds(t *testing.T) {
	proc := newFakeProcessor()
	proc.gate = make(chan struct{})
	cfg := testConfig()
	cfg.MaxConcurrent = 2
	q := NewTaskQueue(cfg, proc, nil)
	q.Start()
	defer q.Stop()

	for _, r := range []string{"D1", "D2", "D3", "D4"} {
		if err := q.Submit(&models.QueueTask{ResourceID: r}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	waitFor(t, 5*time.Second, "two tasks to start", func() bool {
		return q.Status().ActiveTasks == 2
	})
	// Give the dispatcher a few more cycles to (incorrectly) exceed the cap.
	time.Sleep(50 * time.Millisecond)
	if got := q.Status().ActiveTasks; got != 2 {
		t.Fatalf("expected at most 2 active tasks, got %d", got)
	}

	close(proc.gate)
	waitFor(t, 5*time.Second, "all tasks to finish", func() bool {
		return proc.processedCount() == 4
	})

	proc.mu.Lock()
	maxOverall := proc.maxOverall
	proc.mu.Unlock()
	if maxOverall > 2 {
		t.Fatalf("concurrency limit exceeded: %d", maxOverall)
	}
}

func TestRetriesExhaustToFailed(t *testing.T) {
	proc := newFakeProcessor()
	proc.fail = errors.New("flood wait")
	q := NewTaskQueue(testConfig(), proc, nil)
	q.Start()
	defer q.Stop()

	task := &models.QueueTask{ResourceID: "D1", MaxRetries: 2}
	if err := q.Submit(task); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	waitFor(t, 5*time.Second, "task to fail permanently", func() bool {
		got, ok := q.Task(task.ID)
		return ok && got.Status == models.TaskFailed
	})

	got, _ := q.Task(task.ID)
	if got.RetryCount != 3 {
		t.Fatalf("expected 3 attempts recorded, got %d", got.RetryCount)
	}
	if got.LastError == "" {
		t.Fatal("expected last error recorded")
	}
	if proc.processedCount() != 3 {
		t.Fatalf("expected 3 processor invocations, got %d", proc.processedCount())
	}
	if q.locks.Held("D1") {
		t.Fatal("resource lock leaked after permanent failure")
	}
}

func TestStatusSnapshotUnderContention(t *testing.T) {
	proc := newFakeProcessor()
	proc.gate = make(chan struct{})
	q := NewTaskQueue(testConfig(), proc, nil)
	q.Start()
	defer q.Stop()

	first := &models.QueueTask{ResourceID: "D1"}
	second := &models.QueueTask{ResourceID: "D1"}
	if err := q.Submit(first); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := q.Submit(second); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	waitFor(t, 5*time.Second, "first task to start", func() bool {
		s := q.Status()
		return s.ActiveTasks == 1 && s.QueueSize == 1
	})

	status := q.Status()
	if len(status.ProcessingResourceIDs) != 1 || status.ProcessingResourceIDs[0] != "D1" {
		t.Fatalf("expected processing resources [D1], got %v", status.ProcessingResourceIDs)
	}
	if len(status.PendingTaskIDs) != 1 || status.PendingTaskIDs[0] != second.ID {
		t.Fatalf("expected pending task %s, got %v", second.ID, status.PendingTaskIDs)
	}
	if status.MaxConcurrentTasks != 5 {
		t.Fatalf("expected limit 5 in snapshot, got %d", status.MaxConcurrentTasks)
	}

	close(proc.gate)
	waitFor(t, 5*time.Second, "both tasks to finish", func() bool {
		return proc.processedCount() == 2
	})
}

func TestClearPendingLeavesInFlightAlone(t *testing.T) {
	proc := newFakeProcessor()
	proc.gate = make(chan struct{})
	cfg := testConfig()
	cfg.MaxConcurrent = 1
	q := NewTaskQueue(cfg, proc, nil)
	q.Start()
	defer q.Stop()

	running := &models.QueueTask{ResourceID: "D1"}
	if err := q.Submit(running); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitFor(t, 5*time.Second, "first task to start", func() bool {
		return q.Status().ActiveTasks == 1
	})

	var queued []*models.QueueTask
	for _, r := range []string{"D2", "D3", "D4"} {
		task := &models.QueueTask{ResourceID: r}
		if err := q.Submit(task); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		queued = append(queued, task)
	}

	if cleared := q.ClearPending(); cleared != 3 {
		t.Fatalf("expected 3 cleared, got %d", cleared)
	}
	for _, task := range queued {
		got, _ := q.Task(task.ID)
		if got.Status != models.TaskCancelled {
			t.Fatalf("expected CANCELLED, got %s", got.Status)
		}
	}

	close(proc.gate)
	waitFor(t, 5*time.Second, "in-flight task to finish", func() bool {
		got, _ := q.Task(running.ID)
		return got.Status == models.TaskCompleted
	})
	if proc.processedCount() != 1 {
		t.Fatalf("expected only the in-flight task processed, got %d", proc.processedCount())
	}
}

func TestLifecycleEventsPublished(t *testing.T) {
	proc := newFakeProcessor()
	events := &recordingPublisher{}
	q := NewTaskQueue(testConfig(), proc, events)
	q.Start()
	defer q.Stop()

	task := &models.QueueTask{ResourceID: "D1", SessionID: "sess-1"}
	if err := q.Submit(task); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	waitFor(t, 5*time.Second, "task to complete", func() bool {
		got, ok := q.Task(task.ID)
		return ok && got.Status == models.TaskCompleted
	})

	want := []string{"task.submitted", "task.started", "task.completed"}
	got := events.recorded()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}
}

func TestPanickingProcessorReleasesResources(t *testing.T) {
	proc := newFakeProcessor()
	proc.panicMode = true
	q := NewTaskQueue(testConfig(), proc, nil)
	q.Start()
	defer q.Stop()

	task := &models.QueueTask{ResourceID: "D1", MaxRetries: 1}
	if err := q.Submit(task); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	waitFor(t, 5*time.Second, "panicking task to fail", func() bool {
		got, ok := q.Task(task.ID)
		return ok && got.Status == models.TaskFailed
	})
	if q.locks.Held("D1") {
		t.Fatal("resource lock leaked after panic")
	}

	// The pool must still dispatch after the panic.
	proc.mu.Lock()
	proc.panicMode = false
	proc.mu.Unlock()
	next := &models.QueueTask{ResourceID: "D1"}
	if err := q.Submit(next); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitFor(t, 5*time.Second, "follow-up task to complete", func() bool {
		got, ok := q.Task(next.ID)
		return ok && got.Status == models.TaskCompleted
	})
}

func TestStopPreservesInFlightSuccess(t *testing.T) {
	proc := newFakeProcessor()
	proc.gate = make(chan struct{}) // held until shutdown cancels the worker
	proc.succeedOnCancel = true
	cfg := testConfig()
	cfg.TaskTimeout = time.Hour
	q := NewTaskQueue(cfg, proc, nil)
	q.Start()

	task := &models.QueueTask{ResourceID: "D1"}
	if err := q.Submit(task); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitFor(t, 5*time.Second, "task to start", func() bool {
		return q.Status().ActiveTasks == 1
	})

	// Stop cancels the worker context; the processor still finishes
	// successfully and the result must not be recorded as a timeout.
	q.Stop()

	got, _ := q.Task(task.ID)
	if got.Status != models.TaskCompleted {
		t.Fatalf("expected COMPLETED after shutdown, got %s (lastError %q)", got.Status, got.LastError)
	}
}

func TestTaskTimeoutCancelsContext(t *testing.T) {
	proc := newFakeProcessor()
	proc.gate = make(chan struct{}) // never closed; only the deadline releases it
	cfg := testConfig()
	cfg.TaskTimeout = 50 * time.Millisecond
	cfg.MaxRetries = 0
	q := NewTaskQueue(cfg, proc, nil)
	q.Start()
	defer q.Stop()

	task := &models.QueueTask{ResourceID: "D1"}
	if err := q.Submit(task); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	waitFor(t, 5*time.Second, "task to time out", func() bool {
		got, ok := q.Task(task.ID)
		return ok && got.Status == models.TaskFailed
	})
	got, _ := q.Task(task.ID)
	if got.LastError == "" {
		t.Fatal("expected timeout recorded as last error")
	}
	if q.locks.Held("D1") {
		t.Fatal("resource lock leaked after timeout")
	}
}
