// Package agent defines the Agent domain entity and its status state machine.
package agent

import "time"

// Status represents the current state of an agent.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusBusy        Status = "busy"
	StatusUnhealthy   Status = "unhealthy"
	StatusTerminating Status = "terminating"
)

// Agent represents a worker instance that executes one task at a time.
// Cross-references are stored as ids, never as embedded pointers.
type Agent struct {
	ID           string   `json:"id"`
	Pool         string   `json:"pool"`
	Capabilities []string `json:"capabilities"`
	Status       Status   `json:"status"`
	CurrentTask  string   `json:"current_task,omitempty"`

	ConsecutiveFailures  int `json:"consecutive_failures"`
	ConsecutiveSuccesses int `json:"consecutive_successes"`
	TasksCompleted       int `json:"tasks_completed"`

	LastHealthCheckAt time.Time `json:"last_health_check_at,omitzero"`
	CreatedAt         time.Time `json:"created_at"`
}

// Has reports whether the agent declares the given capability.
func (a *Agent) Has(capability string) bool {
	for _, c := range a.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// CanTransition reports whether the status state machine allows from -> to.
// Idle<->Busy is driven by the scheduler, Idle|Busy->Unhealthy by the health
// monitor, Unhealthy->Idle only via explicit recovery, and any state may move
// to Terminating.
func CanTransition(from, to Status) bool {
	if to == StatusTerminating {
		return true
	}
	switch from {
	case StatusIdle:
		return to == StatusBusy || to == StatusUnhealthy
	case StatusBusy:
		return to == StatusIdle || to == StatusUnhealthy
	case StatusUnhealthy:
		return to == StatusIdle
	case StatusTerminating:
		return false
	}
	return false
}
