// Package event defines orchestrator event types for the egress stream.
package event

import (
	"context"
	"encoding/json"
	"time"
)

// Sink consumes orchestrator events. Implementations must not block the
// caller for long; fan-out happens downstream.
type Sink func(ctx context.Context, ev Event)

// Type identifies the kind of orchestrator event.
type Type string

const (
	TypeTaskEnqueued  Type = "task.enqueued"
	TypeTaskAssigned  Type = "task.assigned"
	TypeTaskCompleted Type = "task.completed"
	TypeTaskFailed    Type = "task.failed"
	TypeTaskCancelled Type = "task.cancelled"
	TypeTaskRequeued  Type = "task.requeued"
	TypeTaskRejected  Type = "task.rejected"

	TypeAgentSpawned   Type = "agent.spawned"
	TypeAgentRecycled  Type = "agent.recycled"
	TypeAgentUnhealthy Type = "agent.unhealthy"
	TypeAgentRecovered Type = "agent.recovered"

	TypePoolScaledUp   Type = "pool.scaled_up"
	TypePoolScaledDown Type = "pool.scaled_down"
	TypePoolHalted     Type = "pool.halted"
)

// Event is a single immutable record on the orchestrator's event stream.
// Health and scaling outcomes are reported here, not as errors.
type Event struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Pool      string          `json:"pool,omitempty"`
	AgentID   string          `json:"agent_id,omitempty"`
	TaskID    string          `json:"task_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
