// Package scheduler matches queued tasks to eligible agents.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	swotel "github.com/Strob0t/SwarmForge/internal/adapter/otel"
	"github.com/Strob0t/SwarmForge/internal/config"
	"github.com/Strob0t/SwarmForge/internal/domain"
	"github.com/Strob0t/SwarmForge/internal/domain/agent"
	"github.com/Strob0t/SwarmForge/internal/domain/event"
	"github.com/Strob0t/SwarmForge/internal/domain/task"
	"github.com/Strob0t/SwarmForge/internal/port/host"
	"github.com/Strob0t/SwarmForge/internal/registry"
)

// maxTerminalRetained bounds the in-memory terminal task table; older
// entries are only reachable through the result cache and audit trail.
const maxTerminalRetained = 4096

// ResultSink receives every terminal task result (the egress stream).
type ResultSink func(ctx context.Context, res task.Result)

// Scheduler owns the task table and the priority queue, and drives the
// assignment loop. It reacts to enqueue and agent-idle events rather than
// polling.
type Scheduler struct {
	mu       sync.Mutex
	reg      *registry.Registry
	host     host.Host
	strategy Strategy
	queue    *taskQueue

	tasks        map[string]*task.Task
	terminalIDs  []string // terminal tasks, oldest first, for pruning
	cancelTimers map[string]*time.Timer

	maxHeadScan   int
	cancelAckWait time.Duration

	halted map[string]bool // pools with scheduling halted on invariant breach

	emit      event.Sink
	results   ResultSink
	onRelease func(ctx context.Context, a agent.Agent)
	metrics   *swotel.Metrics

	now func() time.Time // for testing
}

// New creates a Scheduler using the given registry, host and strategy.
func New(reg *registry.Registry, h host.Host, cfg config.Scheduler, strategy Strategy) *Scheduler {
	return &Scheduler{
		reg:           reg,
		host:          h,
		strategy:      strategy,
		queue:         newTaskQueue(),
		tasks:         make(map[string]*task.Task),
		cancelTimers:  make(map[string]*time.Timer),
		maxHeadScan:   cfg.MaxHeadScan,
		cancelAckWait: cfg.CancelAckWait,
		halted:        make(map[string]bool),
		now:           time.Now,
	}
}

// SetEventSink attaches the orchestrator event stream.
func (s *Scheduler) SetEventSink(sink event.Sink) { s.emit = sink }

// SetResultSink attaches the terminal result egress callback.
func (s *Scheduler) SetResultSink(sink ResultSink) { s.results = sink }

// SetOnRelease registers a callback invoked after an agent returns to idle.
// The lifecycle manager uses it for the proactive recycling policy.
func (s *Scheduler) SetOnRelease(fn func(ctx context.Context, a agent.Agent)) { s.onRelease = fn }

// SetMetrics attaches metric instruments.
func (s *Scheduler) SetMetrics(m *swotel.Metrics) { s.metrics = m }

// Enqueue validates and queues a task, then runs a dispatch pass. A task
// whose capability no pool serves is rejected immediately with
// ErrNoEligiblePool rather than queued forever.
func (s *Scheduler) Enqueue(ctx context.Context, req task.SubmitRequest) (task.Task, error) {
	if req.RequiredCapability == "" {
		return task.Task{}, fmt.Errorf("%w: required_capability is empty", domain.ErrNoEligiblePool)
	}
	if !s.reg.HasPoolFor(req.RequiredCapability) {
		s.emitEvent(ctx, event.Event{
			Type:    event.TypeTaskRejected,
			Payload: jsonPayload(map[string]string{"required_capability": req.RequiredCapability}),
		})
		if s.metrics != nil {
			s.metrics.TasksRejected.Add(ctx, 1)
		}
		return task.Task{}, fmt.Errorf("%w: %s", domain.ErrNoEligiblePool, req.RequiredCapability)
	}

	t := &task.Task{
		ID:                 uuid.New().String(),
		RequiredCapability: req.RequiredCapability,
		Priority:           req.Priority,
		Payload:            req.Payload,
		Status:             task.StatusQueued,
		EnqueuedAt:         s.now(),
	}

	s.mu.Lock()
	s.tasks[t.ID] = t
	s.queue.push(t)
	s.mu.Unlock()

	s.emitEvent(ctx, event.Event{Type: event.TypeTaskEnqueued, TaskID: t.ID})
	if s.metrics != nil {
		s.metrics.TasksEnqueued.Add(ctx, 1)
	}
	slog.Info("task enqueued", "task_id", t.ID, "capability", t.RequiredCapability, "priority", t.Priority)

	s.Dispatch(ctx)
	return s.Task(t.ID)
}

// Dispatch runs assignment passes until no queued task has an eligible idle
// agent. Returns the number of tasks assigned.
func (s *Scheduler) Dispatch(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	assigned := 0
	for {
		t := s.queue.popEligible(func(capability string) bool {
			if s.allHaltedLocked(capability) {
				return false
			}
			return len(s.reg.FindEligible(capability)) > 0
		}, s.maxHeadScan)
		if t == nil {
			break
		}

		if !s.assignLocked(ctx, t) {
			// Host dispatch failed; the task is back in the queue. Stop the
			// pass rather than hot-looping against a failing host.
			break
		}
		assigned++
	}

	if s.metrics != nil {
		s.metrics.QueueDepth.Record(ctx, int64(s.queue.Len()))
	}
	return assigned
}

// assignLocked selects an agent and performs the atomic assignment.
// Returns false when the host side effect failed and the task was requeued.
func (s *Scheduler) assignLocked(ctx context.Context, t *task.Task) bool {
	candidates := s.reg.FindEligible(t.RequiredCapability)
	for len(candidates) > 0 {
		pick := s.strategy.Select(t, candidates)
		if err := s.reg.Assign(pick.ID, t.ID); err != nil {
			// Lost a race with the health monitor or lifecycle manager;
			// drop this candidate and retry.
			candidates = dropCandidate(candidates, pick.ID)
			continue
		}

		t.Status = task.StatusAssigned
		t.AgentID = pick.ID
		t.AssignedAt = s.now()

		dctx, span := swotel.StartDispatchSpan(ctx, t.ID, pick.ID, pick.Pool)
		err := s.host.DispatchTask(dctx, pick.ID, t)
		span.End()
		if err != nil {
			slog.Error("task dispatch failed", "task_id", t.ID, "agent_id", pick.ID, "error", err)
			_ = s.reg.Unassign(pick.ID, t.ID)
			t.Status = task.StatusQueued
			t.AgentID = ""
			t.AssignedAt = time.Time{}
			s.queue.push(t)
			return false
		}

		s.emitEvent(ctx, event.Event{Type: event.TypeTaskAssigned, TaskID: t.ID, AgentID: pick.ID, Pool: pick.Pool})
		if s.metrics != nil {
			s.metrics.TasksAssigned.Add(ctx, 1)
		}
		slog.Info("task assigned", "task_id", t.ID, "agent_id", pick.ID, "pool", pick.Pool)
		return true
	}

	// Every candidate disappeared between popEligible and Assign; requeue.
	s.queue.push(t)
	return false
}

// HandleResult processes a completion or failure callback from the agent's
// runner. Task failure does not mark the agent unhealthy; liveness is judged
// by the health monitor's probes alone.
func (s *Scheduler) HandleResult(ctx context.Context, taskID, agentID string, success bool, errMsg string) error {
	s.mu.Lock()

	t, ok := s.tasks[taskID]
	if !ok || t.Status.IsTerminal() {
		// Late or duplicate result; the cancel-ack timeout path may have
		// already failed the task.
		s.mu.Unlock()
		return nil
	}
	if t.Status != task.StatusAssigned || t.AgentID != agentID {
		s.mu.Unlock()
		return fmt.Errorf("unexpected result for task %s from agent %s", taskID, agentID)
	}

	s.stopCancelTimerLocked(taskID)

	released, err := s.reg.Release(agentID, taskID)
	if err != nil {
		// An Assigned task whose agent does not own it is a logic bug, not a
		// runtime condition: halt the affected pools and alert.
		capability := t.RequiredCapability
		s.mu.Unlock()
		s.haltPools(ctx, capability, err)
		return err
	}

	status := task.StatusCompleted
	if !success {
		status = task.StatusFailed
	}
	t.Status = status
	s.retainTerminalLocked(t)

	res := task.Result{
		TaskID:   taskID,
		Status:   status,
		AgentID:  agentID,
		Duration: s.now().Sub(t.AssignedAt),
		Error:    errMsg,
	}
	s.mu.Unlock()

	evType := event.TypeTaskCompleted
	if !success {
		evType = event.TypeTaskFailed
	}
	s.emitEvent(ctx, event.Event{Type: evType, TaskID: taskID, AgentID: agentID, Pool: released.Pool})
	if s.metrics != nil {
		if success {
			s.metrics.TasksCompleted.Add(ctx, 1)
		} else {
			s.metrics.TasksFailed.Add(ctx, 1)
		}
		s.metrics.TaskDuration.Record(ctx, res.Duration.Seconds())
	}
	slog.Info("task finished", "task_id", taskID, "agent_id", agentID, "status", status, "duration_ms", res.Duration.Milliseconds())

	if s.results != nil {
		s.results(ctx, res)
	}
	if s.onRelease != nil {
		s.onRelease(ctx, released)
	}

	// The freed agent may unblock the queue head for its capability class.
	s.Dispatch(ctx)
	return nil
}

// HandleOrphaned fails an assigned task whose agent was detached outside the
// normal result path (unhealthy transition or forced removal). The registry
// has already cleared the agent->task link; requeueing is the caller's call.
func (s *Scheduler) HandleOrphaned(ctx context.Context, taskID, agentID, reason string) {
	s.mu.Lock()
	t, ok := s.tasks[taskID]
	if !ok || t.Status.IsTerminal() {
		s.mu.Unlock()
		return
	}
	s.stopCancelTimerLocked(taskID)
	if t.Status == task.StatusQueued {
		s.queue.remove(taskID)
	}
	t.Status = task.StatusFailed
	s.retainTerminalLocked(t)
	// A task orphaned out of the queue was never assigned.
	var dur time.Duration
	if !t.AssignedAt.IsZero() {
		dur = s.now().Sub(t.AssignedAt)
	}
	res := task.Result{
		TaskID:   taskID,
		Status:   task.StatusFailed,
		AgentID:  agentID,
		Duration: dur,
		Error:    reason,
	}
	s.mu.Unlock()

	s.emitEvent(ctx, event.Event{Type: event.TypeTaskFailed, TaskID: taskID, AgentID: agentID})
	if s.metrics != nil {
		s.metrics.TasksFailed.Add(ctx, 1)
	}
	slog.Warn("task orphaned", "task_id", taskID, "agent_id", agentID, "reason", reason)
	if s.results != nil {
		s.results(ctx, res)
	}
}

// Cancel removes a queued task, or requests cooperative cancellation of an
// assigned one. Cancelling a terminal task is an idempotent no-op.
func (s *Scheduler) Cancel(ctx context.Context, taskID string) error {
	s.mu.Lock()
	t, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}

	switch t.Status {
	case task.StatusQueued:
		s.queue.remove(taskID)
		t.Status = task.StatusCancelled
		s.retainTerminalLocked(t)
		res := task.Result{TaskID: taskID, Status: task.StatusCancelled}
		s.mu.Unlock()

		s.emitEvent(ctx, event.Event{Type: event.TypeTaskCancelled, TaskID: taskID})
		slog.Info("task cancelled", "task_id", taskID)
		if s.results != nil {
			s.results(ctx, res)
		}
		return nil

	case task.StatusAssigned:
		agentID := t.AgentID
		// If the agent does not acknowledge within the window, treat the
		// task as failed and proceed with normal failure handling.
		s.cancelTimers[taskID] = time.AfterFunc(s.cancelAckWait, func() {
			_ = s.HandleResult(context.Background(), taskID, agentID, false, "cancel not acknowledged")
		})
		s.mu.Unlock()

		slog.Info("task cancel requested", "task_id", taskID, "agent_id", agentID)
		return s.host.CancelTask(ctx, agentID, taskID)

	default:
		s.mu.Unlock()
		return nil
	}
}

// Requeue resets a failed task to queued, preserving its original priority.
func (s *Scheduler) Requeue(ctx context.Context, taskID string) error {
	s.mu.Lock()
	t, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}
	if t.Status != task.StatusFailed {
		s.mu.Unlock()
		return fmt.Errorf("task %s is %s, expected failed", taskID, t.Status)
	}

	s.dropTerminalLocked(taskID)
	t.Status = task.StatusQueued
	t.AgentID = ""
	t.AssignedAt = time.Time{}
	s.queue.push(t)
	s.mu.Unlock()

	s.emitEvent(ctx, event.Event{Type: event.TypeTaskRequeued, TaskID: taskID})
	slog.Info("task requeued", "task_id", taskID)
	s.Dispatch(ctx)
	return nil
}

// Task returns a copy of a task by id.
func (s *Scheduler) Task(taskID string) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return task.Task{}, fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}
	return *t, nil
}

// Tasks returns copies of all known tasks (queued, assigned and retained
// terminal entries).
func (s *Scheduler) Tasks() []task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	return out
}

// QueueDepth returns the number of queued tasks requiring the capability.
func (s *Scheduler) QueueDepth(capability string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.depthFor(capability)
}

// QueueLen returns the total queued task count.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Halted reports whether scheduling for the pool has been halted by an
// invariant breach.
func (s *Scheduler) Halted(poolName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted[poolName]
}

// haltPools stops scheduling for every pool serving the capability.
func (s *Scheduler) haltPools(ctx context.Context, capability string, cause error) {
	pools := s.reg.PoolsFor(capability)

	s.mu.Lock()
	for _, name := range pools {
		s.halted[name] = true
	}
	s.mu.Unlock()

	for _, name := range pools {
		slog.Error("pool scheduling halted", "pool", name, "error", cause)
		s.emitEvent(ctx, event.Event{
			Type:    event.TypePoolHalted,
			Pool:    name,
			Payload: jsonPayload(map[string]string{"error": cause.Error()}),
		})
	}
}

// allHaltedLocked reports whether every pool serving the capability is halted.
func (s *Scheduler) allHaltedLocked(capability string) bool {
	pools := s.reg.PoolsFor(capability)
	if len(pools) == 0 {
		return true
	}
	for _, name := range pools {
		if !s.halted[name] {
			return false
		}
	}
	return true
}

func (s *Scheduler) stopCancelTimerLocked(taskID string) {
	if timer, ok := s.cancelTimers[taskID]; ok {
		timer.Stop()
		delete(s.cancelTimers, taskID)
	}
}

// retainTerminalLocked records the task as terminal and prunes the oldest
// retained entries past the bound.
func (s *Scheduler) retainTerminalLocked(t *task.Task) {
	s.terminalIDs = append(s.terminalIDs, t.ID)
	for len(s.terminalIDs) > maxTerminalRetained {
		oldest := s.terminalIDs[0]
		s.terminalIDs = s.terminalIDs[1:]
		delete(s.tasks, oldest)
	}
}

func (s *Scheduler) dropTerminalLocked(taskID string) {
	for i, id := range s.terminalIDs {
		if id == taskID {
			s.terminalIDs = append(s.terminalIDs[:i], s.terminalIDs[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) emitEvent(ctx context.Context, ev event.Event) {
	if s.emit == nil {
		return
	}
	ev.ID = uuid.New().String()
	ev.CreatedAt = s.now()
	s.emit(ctx, ev)
}

func dropCandidate(candidates []agent.Agent, id string) []agent.Agent {
	out := candidates[:0]
	for _, a := range candidates {
		if a.ID != id {
			out = append(out, a)
		}
	}
	return out
}

func jsonPayload(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
