// Package probe defines the transient health-check result value.
package probe

import "time"

// Result is a single health probe outcome. It is passed by value between the
// health monitor and the registry and never persisted.
type Result struct {
	AgentID   string        `json:"agent_id"`
	Success   bool          `json:"success"`
	Latency   time.Duration `json:"latency_ms"`
	Timestamp time.Time     `json:"timestamp"`
}
