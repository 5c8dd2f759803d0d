// Package task defines the Task domain entity.
package task

import (
	"encoding/json"
	"time"
)

// Status represents the current state of a task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusAssigned  Status = "assigned"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Task represents a unit of work dispatched to exactly one agent at a time.
// The payload is opaque to the orchestrator.
type Task struct {
	ID                 string          `json:"id"`
	RequiredCapability string          `json:"required_capability"`
	Priority           int             `json:"priority"` // lower value = higher priority
	Payload            json.RawMessage `json:"payload,omitempty"`
	Status             Status          `json:"status"`
	AgentID            string          `json:"agent_id,omitempty"`
	EnqueuedAt         time.Time       `json:"enqueued_at"`
	AssignedAt         time.Time       `json:"assigned_at,omitzero"`
}

// SubmitRequest holds the fields needed to enqueue a new task.
type SubmitRequest struct {
	RequiredCapability string          `json:"required_capability"`
	Priority           int             `json:"priority"`
	Payload            json.RawMessage `json:"payload,omitempty"`
}

// Result is the terminal outcome emitted on the egress stream.
type Result struct {
	TaskID   string        `json:"task_id"`
	Status   Status        `json:"status"`
	AgentID  string        `json:"agent_id,omitempty"`
	Duration time.Duration `json:"duration_ms"`
	Error    string        `json:"error,omitempty"`
}
