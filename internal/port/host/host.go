// Package host defines the port for the agent-hosting mechanism.
package host

import (
	"context"

	"github.com/Strob0t/SwarmForge/internal/domain/task"
)

// Host starts and stops agent runners and probes their liveness. The actual
// hosting mechanism (subprocess, container, remote runner) is opaque to the
// orchestrator core.
type Host interface {
	// StartAgent performs the hosting side effect for a newly registered agent.
	StartAgent(ctx context.Context, agentID, pool string, capabilities []string) error

	// StopAgent tears down the runner for an agent.
	StopAgent(ctx context.Context, agentID string) error

	// DispatchTask hands a task to the agent's runner for execution.
	DispatchTask(ctx context.Context, agentID string, t *task.Task) error

	// CancelTask requests cooperative cancellation of an in-flight task.
	CancelTask(ctx context.Context, agentID, taskID string) error

	// Probe checks the agent's liveness. The given context carries the
	// per-probe timeout; exceeding it counts as a failure.
	Probe(ctx context.Context, agentID string) error
}
