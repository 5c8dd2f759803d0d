package messagequeue

import "encoding/json"

// TaskSubmitPayload is the schema for tasks.submit messages.
type TaskSubmitPayload struct {
	RequiredCapability string          `json:"required_capability"`
	Priority           int             `json:"priority"`
	Payload            json.RawMessage `json:"payload,omitempty"`
}

// TaskCancelPayload is the schema for tasks.cancel messages.
type TaskCancelPayload struct {
	TaskID string `json:"task_id"`
}

// TaskResultPayload is the schema for tasks.result messages.
type TaskResultPayload struct {
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
	AgentID    string `json:"agent_id,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// AgentStatusPayload is the schema for agents.status messages.
type AgentStatusPayload struct {
	AgentID string `json:"agent_id"`
	Pool    string `json:"pool"`
	Status  string `json:"status"`
}

// RunnerSpawnPayload is the schema for runners.spawn messages.
type RunnerSpawnPayload struct {
	AgentID      string   `json:"agent_id"`
	Pool         string   `json:"pool"`
	Capabilities []string `json:"capabilities"`
}

// RunnerStopPayload is the schema for runners.stop messages.
type RunnerStopPayload struct {
	AgentID string `json:"agent_id"`
}

// RunnerDispatchPayload is the schema for runners.dispatch.{agent_id} messages.
type RunnerDispatchPayload struct {
	TaskID             string          `json:"task_id"`
	AgentID            string          `json:"agent_id"`
	RequiredCapability string          `json:"required_capability"`
	Payload            json.RawMessage `json:"payload,omitempty"`
}

// RunnerCancelPayload is the schema for runners.cancel.{agent_id} messages.
type RunnerCancelPayload struct {
	TaskID  string `json:"task_id"`
	AgentID string `json:"agent_id"`
}

// RunnerDonePayload is the schema for runners.done messages.
type RunnerDonePayload struct {
	TaskID  string `json:"task_id"`
	AgentID string `json:"agent_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
