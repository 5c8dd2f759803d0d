package service_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/SwarmForge/internal/config"
	"github.com/Strob0t/SwarmForge/internal/domain/event"
	"github.com/Strob0t/SwarmForge/internal/domain/pool"
	"github.com/Strob0t/SwarmForge/internal/domain/task"
	"github.com/Strob0t/SwarmForge/internal/port/messagequeue"
	"github.com/Strob0t/SwarmForge/internal/registry"
	"github.com/Strob0t/SwarmForge/internal/scheduler"
	"github.com/Strob0t/SwarmForge/internal/service"
)

// stubQueue is an in-process messagequeue.Queue: published messages are
// recorded and delivered synchronously to matching subscribers.
type stubQueue struct {
	mu        sync.Mutex
	published map[string][][]byte
	handlers  map[string]messagequeue.Handler
	drained   bool
}

func newStubQueue() *stubQueue {
	return &stubQueue{
		published: make(map[string][][]byte),
		handlers:  make(map[string]messagequeue.Handler),
	}
}

func (q *stubQueue) Publish(ctx context.Context, subject string, data []byte) error {
	q.mu.Lock()
	q.published[subject] = append(q.published[subject], data)
	h := q.handlers[subject]
	q.mu.Unlock()

	if h != nil {
		return h(ctx, subject, data)
	}
	return nil
}

func (q *stubQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[subject] = h
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.handlers, subject)
	}, nil
}

func (q *stubQueue) Drain() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.drained = true
	return nil
}

func (q *stubQueue) Close() error      { return nil }
func (q *stubQueue) IsConnected() bool { return true }

func (q *stubQueue) messages(subject string) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.published[subject]
}

// memCache is an in-memory cache.Cache for retention tests.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemCache() *memCache { return &memCache{entries: make(map[string][]byte)} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	return data, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *memCache) Close() {}

// memStore is an in-memory eventstore.Store.
type memStore struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *memStore) Append(_ context.Context, ev event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *memStore) ListRecent(_ context.Context, limit int) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.Event, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

func (s *memStore) Close() {}

type orchFixture struct {
	queue *stubQueue
	reg   *registry.Registry
	sched *scheduler.Scheduler
	cache *memCache
	store *memStore
	orch  *service.Orchestrator
	host  *stubHost
}

// stubHost accepts all host calls.
type stubHost struct{}

func (stubHost) StartAgent(context.Context, string, string, []string) error { return nil }
func (stubHost) StopAgent(context.Context, string) error                    { return nil }
func (stubHost) DispatchTask(context.Context, string, *task.Task) error     { return nil }
func (stubHost) CancelTask(context.Context, string, string) error           { return nil }
func (stubHost) Probe(context.Context, string) error                        { return nil }

func newOrchFixture(t *testing.T) *orchFixture {
	t.Helper()
	reg := registry.New()
	err := reg.RegisterPool(pool.Spec{
		Name:             "builders",
		CapabilityFilter: []string{"go"},
		MaxAgents:        3,
	})
	if err != nil {
		t.Fatalf("RegisterPool: %v", err)
	}

	h := &stubHost{}
	strategy, err := scheduler.NewStrategy("round_robin")
	if err != nil {
		t.Fatalf("NewStrategy: %v", err)
	}
	sched := scheduler.New(reg, h, config.Scheduler{MaxHeadScan: 32, CancelAckWait: time.Second}, strategy)

	q := newStubQueue()
	cache := newMemCache()
	store := &memStore{}
	orch := service.NewOrchestrator(q, sched, reg, nil, store, cache, time.Hour)

	sched.SetEventSink(orch.EventSink())
	sched.SetResultSink(orch.ResultSink())

	if _, err := orch.StartSubscribers(context.Background()); err != nil {
		t.Fatalf("StartSubscribers: %v", err)
	}
	return &orchFixture{queue: q, reg: reg, sched: sched, cache: cache, store: store, orch: orch, host: h}
}

func TestQueuedSubmissionEnqueuesTask(t *testing.T) {
	f := newOrchFixture(t)
	ctx := context.Background()

	data, _ := json.Marshal(messagequeue.TaskSubmitPayload{RequiredCapability: "go", Priority: 3})
	if err := f.queue.Publish(ctx, messagequeue.SubjectTaskSubmit, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	tasks := f.sched.Tasks()
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].RequiredCapability != "go" || tasks[0].Priority != 3 {
		t.Fatalf("unexpected task %+v", tasks[0])
	}
}

func TestQueuedSubmissionRejectionIsTerminal(t *testing.T) {
	f := newOrchFixture(t)

	// Unserved capability: the handler must swallow the rejection so the
	// message is not redelivered forever.
	data, _ := json.Marshal(messagequeue.TaskSubmitPayload{RequiredCapability: "cobol"})
	if err := f.queue.Publish(context.Background(), messagequeue.SubjectTaskSubmit, data); err != nil {
		t.Fatalf("expected nil from rejected submission, got %v", err)
	}
	if len(f.sched.Tasks()) != 0 {
		t.Fatal("rejected submission must not create a task")
	}
}

func TestRunnerDoneCompletesTaskAndPublishesResult(t *testing.T) {
	f := newOrchFixture(t)
	ctx := context.Background()

	a, _ := f.reg.AddAgent("builders", nil)
	tk, err := f.sched.Enqueue(ctx, task.SubmitRequest{RequiredCapability: "go"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	done, _ := json.Marshal(messagequeue.RunnerDonePayload{TaskID: tk.ID, AgentID: a.ID, Success: true})
	if err := f.queue.Publish(ctx, messagequeue.SubjectRunnerDone, done); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got, _ := f.sched.Task(tk.ID)
	if got.Status != task.StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}

	results := f.queue.messages(messagequeue.SubjectTaskResult)
	if len(results) != 1 {
		t.Fatalf("expected 1 result message, got %d", len(results))
	}
	var payload messagequeue.TaskResultPayload
	if err := json.Unmarshal(results[0], &payload); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if payload.TaskID != tk.ID || payload.Status != string(task.StatusCompleted) {
		t.Fatalf("unexpected result payload %+v", payload)
	}

	// The result is retained for postmortem lookup.
	res, ok := f.orch.Result(ctx, tk.ID)
	if !ok {
		t.Fatal("expected retained result")
	}
	if res.AgentID != a.ID || res.Status != task.StatusCompleted {
		t.Fatalf("unexpected retained result %+v", res)
	}
}

func TestQueuedCancelCancelsTask(t *testing.T) {
	f := newOrchFixture(t)
	ctx := context.Background()

	tk, err := f.sched.Enqueue(ctx, task.SubmitRequest{RequiredCapability: "go"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	data, _ := json.Marshal(messagequeue.TaskCancelPayload{TaskID: tk.ID})
	if err := f.queue.Publish(ctx, messagequeue.SubjectTaskCancel, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got, _ := f.sched.Task(tk.ID)
	if got.Status != task.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
}

func TestEventSinkFansOut(t *testing.T) {
	f := newOrchFixture(t)
	ctx := context.Background()

	sink := f.orch.EventSink()
	sink(ctx, event.Event{ID: "e1", Type: event.TypeAgentSpawned, AgentID: "a1", Pool: "builders"})
	sink(ctx, event.Event{ID: "e2", Type: event.TypeTaskEnqueued, TaskID: "t1"})

	events, err := f.store.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 stored events, got %d", len(events))
	}

	// Only agent.* events fan out to the agents.status subject.
	statuses := f.queue.messages(messagequeue.SubjectAgentStatus)
	if len(statuses) != 1 {
		t.Fatalf("expected 1 agent status message, got %d", len(statuses))
	}
	var payload messagequeue.AgentStatusPayload
	if err := json.Unmarshal(statuses[0], &payload); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if payload.AgentID != "a1" || payload.Pool != "builders" {
		t.Fatalf("unexpected status payload %+v", payload)
	}
}

func TestResultLookupMissing(t *testing.T) {
	f := newOrchFixture(t)
	if _, ok := f.orch.Result(context.Background(), "missing"); ok {
		t.Fatal("expected no retained result")
	}
}

func TestCloseStopsSubscribersAndDrains(t *testing.T) {
	f := newOrchFixture(t)
	ctx := context.Background()

	if err := f.orch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f.queue.mu.Lock()
	drained := f.queue.drained
	f.queue.mu.Unlock()
	if !drained {
		t.Fatal("expected the queue to be drained on close")
	}

	// Subscriptions are gone: a submission after close reaches no handler.
	data, _ := json.Marshal(messagequeue.TaskSubmitPayload{RequiredCapability: "go"})
	if err := f.queue.Publish(ctx, messagequeue.SubjectTaskSubmit, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(f.sched.Tasks()) != 0 {
		t.Fatal("expected no task after subscribers stopped")
	}
}
