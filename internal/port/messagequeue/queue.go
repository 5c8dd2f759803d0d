// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject constants for NATS subjects used by SwarmForge.
const (
	SubjectTaskSubmit  = "tasks.submit"  // external producers -> scheduler
	SubjectTaskCancel  = "tasks.cancel"  // external producers -> scheduler
	SubjectTaskResult  = "tasks.result"  // result egress, one message per terminal state
	SubjectAgentStatus = "agents.status" // agent status change events

	// Runner protocol subjects (control plane <-> agent runners)
	SubjectRunnerSpawn    = "runners.spawn"    // start a runner for a new agent
	SubjectRunnerStop     = "runners.stop"     // stop a runner
	SubjectRunnerDispatch = "runners.dispatch" // runners.dispatch.{agent_id}: hand a task to a runner
	SubjectRunnerCancel   = "runners.cancel"   // runners.cancel.{agent_id}: ask a runner to abandon a task
	SubjectRunnerProbe    = "runners.probe"    // runners.probe.{agent_id}: request-reply health probe
	SubjectRunnerDone     = "runners.done"     // runner -> scheduler: task finished
)
