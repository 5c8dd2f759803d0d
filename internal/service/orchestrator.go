// Package service binds the scheduling core to the message queue, the event
// stream consumers and the result retention cache.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Strob0t/SwarmForge/internal/domain/event"
	"github.com/Strob0t/SwarmForge/internal/domain/task"
	"github.com/Strob0t/SwarmForge/internal/port/broadcast"
	"github.com/Strob0t/SwarmForge/internal/port/cache"
	"github.com/Strob0t/SwarmForge/internal/port/eventstore"
	"github.com/Strob0t/SwarmForge/internal/port/messagequeue"
	"github.com/Strob0t/SwarmForge/internal/registry"
	"github.com/Strob0t/SwarmForge/internal/scheduler"
)

// resultKeyPrefix namespaces terminal results in the retention cache.
const resultKeyPrefix = "result:"

// Orchestrator wires ingress (task submissions, cancels, runner completions)
// and egress (results, events) between the queue and the scheduling core.
type Orchestrator struct {
	queue     messagequeue.Queue
	sched     *scheduler.Scheduler
	reg       *registry.Registry
	hub       broadcast.Broadcaster
	events    eventstore.Store
	results   cache.Cache
	resultTTL time.Duration
	stopSubs  func()
}

// NewOrchestrator creates the wiring service. hub, events and results may be
// nil; the corresponding fan-out is skipped.
func NewOrchestrator(queue messagequeue.Queue, sched *scheduler.Scheduler, reg *registry.Registry,
	hub broadcast.Broadcaster, events eventstore.Store, results cache.Cache, resultTTL time.Duration) *Orchestrator {
	return &Orchestrator{
		queue:     queue,
		sched:     sched,
		reg:       reg,
		hub:       hub,
		events:    events,
		results:   results,
		resultTTL: resultTTL,
	}
}

// StartSubscribers registers all queue consumers. The returned cancel stops
// every subscription.
func (o *Orchestrator) StartSubscribers(ctx context.Context) (cancel func(), err error) {
	var cancels []func()
	stopAll := func() {
		for _, c := range cancels {
			c()
		}
	}

	for _, sub := range []struct {
		subject string
		start   func(context.Context) (func(), error)
	}{
		{messagequeue.SubjectTaskSubmit, o.startSubmitSubscriber},
		{messagequeue.SubjectTaskCancel, o.startCancelSubscriber},
		{messagequeue.SubjectRunnerDone, o.startDoneSubscriber},
	} {
		c, err := sub.start(ctx)
		if err != nil {
			stopAll()
			return nil, fmt.Errorf("subscribe %s: %w", sub.subject, err)
		}
		cancels = append(cancels, c)
	}
	o.stopSubs = stopAll
	return stopAll, nil
}

// Close stops the queue consumers and drains the connection so buffered
// results and events are flushed before shutdown. The connection is closed
// hard when the drain fails.
func (o *Orchestrator) Close() error {
	if o.stopSubs != nil {
		o.stopSubs()
		o.stopSubs = nil
	}
	if err := o.queue.Drain(); err != nil {
		_ = o.queue.Close()
		return fmt.Errorf("queue drain: %w", err)
	}
	return nil
}

func (o *Orchestrator) startSubmitSubscriber(ctx context.Context) (func(), error) {
	return o.queue.Subscribe(ctx, messagequeue.SubjectTaskSubmit, func(msgCtx context.Context, _ string, data []byte) error {
		var payload messagequeue.TaskSubmitPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("unmarshal submit: %w", err)
		}

		t, err := o.sched.Enqueue(msgCtx, task.SubmitRequest{
			RequiredCapability: payload.RequiredCapability,
			Priority:           payload.Priority,
			Payload:            payload.Payload,
		})
		if err != nil {
			// Rejection is a terminal outcome for the submitter, not a
			// redelivery candidate.
			slog.Warn("queued submission rejected", "capability", payload.RequiredCapability, "error", err)
			return nil
		}
		slog.Debug("queued submission accepted", "task_id", t.ID)
		return nil
	})
}

func (o *Orchestrator) startCancelSubscriber(ctx context.Context) (func(), error) {
	return o.queue.Subscribe(ctx, messagequeue.SubjectTaskCancel, func(msgCtx context.Context, _ string, data []byte) error {
		var payload messagequeue.TaskCancelPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("unmarshal cancel: %w", err)
		}
		if err := o.sched.Cancel(msgCtx, payload.TaskID); err != nil {
			slog.Warn("queued cancel failed", "task_id", payload.TaskID, "error", err)
		}
		return nil
	})
}

func (o *Orchestrator) startDoneSubscriber(ctx context.Context) (func(), error) {
	return o.queue.Subscribe(ctx, messagequeue.SubjectRunnerDone, func(msgCtx context.Context, _ string, data []byte) error {
		var payload messagequeue.RunnerDonePayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("unmarshal done: %w", err)
		}
		return o.sched.HandleResult(msgCtx, payload.TaskID, payload.AgentID, payload.Success, payload.Error)
	})
}

// EventSink returns the fan-out for orchestrator events: audit store,
// websocket clients and the agents.status subject. Failures are logged and
// never reach the emitter.
func (o *Orchestrator) EventSink() event.Sink {
	return func(ctx context.Context, ev event.Event) {
		if o.events != nil {
			if err := o.events.Append(ctx, ev); err != nil {
				slog.Error("event append failed", "type", ev.Type, "error", err)
			}
		}
		if o.hub != nil {
			o.hub.BroadcastEvent(ctx, string(ev.Type), ev)
		}
		if strings.HasPrefix(string(ev.Type), "agent.") {
			o.publishAgentStatus(ctx, ev)
		}
	}
}

// ResultSink returns the terminal result egress: one tasks.result message per
// terminal task, plus retention cache write for postmortem lookup.
func (o *Orchestrator) ResultSink() scheduler.ResultSink {
	return func(ctx context.Context, res task.Result) {
		payload := messagequeue.TaskResultPayload{
			TaskID:     res.TaskID,
			Status:     string(res.Status),
			AgentID:    res.AgentID,
			DurationMS: res.Duration.Milliseconds(),
			Error:      res.Error,
		}
		data, err := json.Marshal(payload)
		if err != nil {
			slog.Error("result marshal failed", "task_id", res.TaskID, "error", err)
			return
		}

		if err := o.queue.Publish(ctx, messagequeue.SubjectTaskResult, data); err != nil {
			slog.Error("result publish failed", "task_id", res.TaskID, "error", err)
		}
		if o.results != nil {
			if err := o.results.Set(ctx, resultKeyPrefix+res.TaskID, data, o.resultTTL); err != nil {
				slog.Error("result cache write failed", "task_id", res.TaskID, "error", err)
			}
		}
	}
}

// Result looks up a retained terminal result by task id.
func (o *Orchestrator) Result(ctx context.Context, taskID string) (task.Result, bool) {
	if o.results == nil {
		return task.Result{}, false
	}
	data, ok, err := o.results.Get(ctx, resultKeyPrefix+taskID)
	if err != nil || !ok {
		return task.Result{}, false
	}

	var payload messagequeue.TaskResultPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return task.Result{}, false
	}
	return task.Result{
		TaskID:   payload.TaskID,
		Status:   task.Status(payload.Status),
		AgentID:  payload.AgentID,
		Duration: time.Duration(payload.DurationMS) * time.Millisecond,
		Error:    payload.Error,
	}, true
}

func (o *Orchestrator) publishAgentStatus(ctx context.Context, ev event.Event) {
	status := ""
	if a, err := o.reg.Get(ev.AgentID); err == nil {
		status = string(a.Status)
	}
	data, err := json.Marshal(messagequeue.AgentStatusPayload{
		AgentID: ev.AgentID,
		Pool:    ev.Pool,
		Status:  status,
	})
	if err != nil {
		return
	}
	if err := o.queue.Publish(ctx, messagequeue.SubjectAgentStatus, data); err != nil {
		slog.Error("agent status publish failed", "agent_id", ev.AgentID, "error", err)
	}
}
