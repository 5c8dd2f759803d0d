package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/Strob0t/SwarmForge/internal/domain/task"
	"github.com/Strob0t/SwarmForge/internal/port/messagequeue"
)

// Host drives agent runners over core NATS request-reply. Every control call
// waits for an explicit acknowledgement from the runner side, so failures
// surface synchronously to the caller.
type Host struct {
	nc *nats.Conn
}

// NewHost creates a Host on the queue's underlying connection.
func NewHost(q *Queue) *Host {
	return &Host{nc: q.Conn()}
}

// runnerAck is the reply schema for every runner control request.
type runnerAck struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// StartAgent asks the runner supervisor to start a runner for the agent.
func (h *Host) StartAgent(ctx context.Context, agentID, pool string, capabilities []string) error {
	return h.request(ctx, messagequeue.SubjectRunnerSpawn, messagequeue.RunnerSpawnPayload{
		AgentID:      agentID,
		Pool:         pool,
		Capabilities: capabilities,
	})
}

// StopAgent asks the runner supervisor to stop the agent's runner.
func (h *Host) StopAgent(ctx context.Context, agentID string) error {
	return h.request(ctx, messagequeue.SubjectRunnerStop, messagequeue.RunnerStopPayload{
		AgentID: agentID,
	})
}

// DispatchTask hands a task to the agent's runner.
func (h *Host) DispatchTask(ctx context.Context, agentID string, t *task.Task) error {
	subject := messagequeue.SubjectRunnerDispatch + "." + agentID
	return h.request(ctx, subject, messagequeue.RunnerDispatchPayload{
		TaskID:             t.ID,
		AgentID:            agentID,
		RequiredCapability: t.RequiredCapability,
		Payload:            t.Payload,
	})
}

// CancelTask asks the agent's runner to abandon a task. The runner confirms
// the outcome asynchronously through the normal done path.
func (h *Host) CancelTask(ctx context.Context, agentID, taskID string) error {
	subject := messagequeue.SubjectRunnerCancel + "." + agentID
	return h.request(ctx, subject, messagequeue.RunnerCancelPayload{
		TaskID:  taskID,
		AgentID: agentID,
	})
}

// Probe checks runner liveness with an empty request-reply round trip. Any
// reply counts as alive; timeouts and no-responder errors count as failure.
func (h *Host) Probe(ctx context.Context, agentID string) error {
	subject := messagequeue.SubjectRunnerProbe + "." + agentID
	if _, err := h.nc.RequestWithContext(ctx, subject, nil); err != nil {
		return fmt.Errorf("probe %s: %w", agentID, err)
	}
	return nil
}

func (h *Host) request(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}

	msg, err := h.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("request %s: %w", subject, err)
	}

	var ack runnerAck
	if err := json.Unmarshal(msg.Data, &ack); err != nil {
		return fmt.Errorf("decode ack on %s: %w", subject, err)
	}
	if !ack.OK {
		return fmt.Errorf("runner rejected %s: %s", subject, ack.Error)
	}
	return nil
}
