// Package lifecycle manages agent spawn, drain and recycle flows against the
// agent host, keeping the registry consistent when host calls fail.
package lifecycle

import (
	"context"
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
	"github.com/Strob0t/SwarmForge/internal/port/host"
	"github.com/Strob0t/SwarmForge/internal/registry"
	"github.com/Strob0t/SwarmForge/internal/resilience"
)

// Manager owns every agent spawn and teardown. All host interaction goes
// through the circuit breaker so a failing host backend cannot be hammered
// by scaling and recycling loops.
type Manager struct {
	reg     *registry.Registry
	host    host.Host
	breaker *resilience.Breaker

	drainTimeout     time.Duration
	maxTasksPerAgent int

	mu     sync.Mutex
	drains map[string]*time.Timer // agentID -> forced-stop timer

	emit       event.Sink
	metrics    *swotel.Metrics
	onOrphaned func(ctx context.Context, taskID, agentID, reason string)

	now func() time.Time // for testing
}

// NewManager creates a Manager from the lifecycle configuration.
func NewManager(reg *registry.Registry, h host.Host, breaker *resilience.Breaker, cfg config.Lifecycle) *Manager {
	return &Manager{
		reg:              reg,
		host:             h,
		breaker:          breaker,
		drainTimeout:     cfg.DrainTimeout,
		maxTasksPerAgent: cfg.MaxTasksPerAgent,
		drains:           make(map[string]*time.Timer),
		now:              time.Now,
	}
}

// SetEventSink attaches the orchestrator event stream.
func (m *Manager) SetEventSink(sink event.Sink) { m.emit = sink }

// SetMetrics attaches metric instruments.
func (m *Manager) SetMetrics(mt *swotel.Metrics) { m.metrics = mt }

// SetOnOrphaned registers the callback invoked when a hard recycle detaches
// a busy agent's task.
func (m *Manager) SetOnOrphaned(fn func(ctx context.Context, taskID, agentID, reason string)) {
	m.onOrphaned = fn
}

// BreakerState reports the host circuit breaker position.
func (m *Manager) BreakerState() resilience.State { return m.breaker.State() }

// Spawn registers a new agent in the pool and starts it on the host. The
// registry entry is rolled back when the host start fails, so a spawn never
// leaves a phantom agent behind.
func (m *Manager) Spawn(ctx context.Context, poolName string, capabilities []string) (agent.Agent, error) {
	a, err := m.reg.AddAgent(poolName, capabilities)
	if err != nil {
		return agent.Agent{}, err
	}

	ctx, span := swotel.StartSpawnSpan(ctx, a.ID, poolName)
	defer span.End()

	err = m.breaker.Execute(func() error {
		return m.host.StartAgent(ctx, a.ID, poolName, a.Capabilities)
	})
	if err != nil {
		_, _ = m.reg.RemoveAgent(a.ID, true)
		slog.Error("agent spawn failed", "agent_id", a.ID, "pool", poolName, "error", err)
		return agent.Agent{}, fmt.Errorf("%w: %v", domain.ErrHostingFailure, err)
	}

	slog.Info("agent spawned", "agent_id", a.ID, "pool", poolName, "capabilities", a.Capabilities)
	m.emitEvent(ctx, event.TypeAgentSpawned, a.ID, poolName)
	if m.metrics != nil {
		m.metrics.AgentsSpawned.Add(ctx, 1)
	}
	return a, nil
}

// Recycle tears down an agent. Graceful recycling lets a busy agent finish
// its current task within the drain timeout; hard recycling stops it
// immediately and reports the detached task through the orphan callback.
func (m *Manager) Recycle(ctx context.Context, agentID string, graceful bool) error {
	prev, taskID, err := m.reg.BeginTerminate(agentID)
	if err != nil {
		return err
	}
	if prev == agent.StatusTerminating {
		return nil
	}

	if graceful && prev == agent.StatusBusy {
		slog.Info("agent draining", "agent_id", agentID, "task_id", taskID, "drain_timeout", m.drainTimeout)
		m.mu.Lock()
		m.drains[agentID] = time.AfterFunc(m.drainTimeout, func() {
			slog.Warn("drain timeout elapsed, stopping agent", "agent_id", agentID)
			m.finish(context.Background(), agentID, "drain timeout elapsed")
		})
		m.mu.Unlock()
		return nil
	}

	m.finish(ctx, agentID, "hard recycle")
	return nil
}

// HandleReleased reacts to an agent returning from a task. A draining agent
// is torn down now that its task is done; otherwise the task-count recycling
// policy is applied. Wired as the scheduler's release callback.
func (m *Manager) HandleReleased(ctx context.Context, a agent.Agent) {
	if a.Status == agent.StatusTerminating {
		m.finish(ctx, a.ID, "drain complete")
		return
	}

	if m.maxTasksPerAgent > 0 && a.TasksCompleted >= m.maxTasksPerAgent {
		slog.Info("agent reached task limit, recycling", "agent_id", a.ID, "tasks_completed", a.TasksCompleted)
		if err := m.Recycle(ctx, a.ID, true); err != nil {
			slog.Error("task-limit recycle failed", "agent_id", a.ID, "error", err)
		}
	}
}

// EnsureMin spawns agents until the pool holds at least its configured
// minimum, counting draining agents as already gone.
func (m *Manager) EnsureMin(ctx context.Context, poolName string) error {
	for {
		p, err := m.reg.Pool(poolName)
		if err != nil {
			return err
		}

		alive := 0
		for _, a := range m.reg.Agents(poolName) {
			if a.Status != agent.StatusTerminating {
				alive++
			}
		}
		if alive >= p.MinAgents {
			return nil
		}

		if _, err := m.Spawn(ctx, poolName, nil); err != nil {
			return err
		}
	}
}

// finish removes the agent from the registry and stops it on the host.
// Reached from hard recycles, drain completion and drain timeouts; the
// drain timer and the release callback may race, so removal is idempotent.
func (m *Manager) finish(ctx context.Context, agentID, reason string) {
	m.mu.Lock()
	if timer, ok := m.drains[agentID]; ok {
		timer.Stop()
		delete(m.drains, agentID)
	}
	m.mu.Unlock()

	a, err := m.reg.Get(agentID)
	if err != nil {
		return // already removed by the racing path
	}

	orphanedTask, err := m.reg.RemoveAgent(agentID, true)
	if err != nil {
		slog.Error("agent removal failed", "agent_id", agentID, "error", err)
		return
	}

	stopErr := m.breaker.Execute(func() error {
		return m.host.StopAgent(ctx, agentID)
	})
	if stopErr != nil {
		// The registry entry is gone either way; the host side is reported
		// and left for its own reaping.
		slog.Error("agent stop failed", "agent_id", agentID, "error", stopErr)
	}

	slog.Info("agent recycled", "agent_id", agentID, "pool", a.Pool, "reason", reason)
	m.emitEvent(ctx, event.TypeAgentRecycled, agentID, a.Pool)
	if m.metrics != nil {
		m.metrics.AgentsRecycled.Add(ctx, 1)
	}

	if orphanedTask != "" && m.onOrphaned != nil {
		m.onOrphaned(ctx, orphanedTask, agentID, reason)
	}

	if err := m.EnsureMin(ctx, a.Pool); err != nil {
		slog.Error("minimum occupancy restore failed", "pool", a.Pool, "error", err)
	}
}

func (m *Manager) emitEvent(ctx context.Context, t event.Type, agentID, poolName string) {
	if m.emit == nil {
		return
	}
	m.emit(ctx, event.Event{
		ID:        uuid.New().String(),
		Type:      t,
		AgentID:   agentID,
		Pool:      poolName,
		CreatedAt: m.now(),
	})
}
