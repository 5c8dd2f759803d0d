// Package health runs periodic liveness probes against all managed agents
// and applies the threshold-based unhealthy/recovery transitions.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	swotel "github.com/Strob0t/SwarmForge/internal/adapter/otel"
	"github.com/Strob0t/SwarmForge/internal/config"
	"github.com/Strob0t/SwarmForge/internal/domain/agent"
	"github.com/Strob0t/SwarmForge/internal/domain/event"
	"github.com/Strob0t/SwarmForge/internal/domain/probe"
	"github.com/Strob0t/SwarmForge/internal/port/host"
	"github.com/Strob0t/SwarmForge/internal/registry"
)

// Monitor probes every non-terminating agent each interval and records the
// outcomes in the registry. Transitions are surfaced as events and through
// the orphaned-task callback, never as errors to any task submitter.
type Monitor struct {
	reg      *registry.Registry
	host     host.Host
	interval time.Duration
	timeout  time.Duration

	unhealthyThreshold int
	recoveryThreshold  int

	emit       event.Sink
	metrics    *swotel.Metrics
	onOrphaned func(ctx context.Context, taskID, agentID, reason string)
	onRecover  func(ctx context.Context)

	now func() time.Time // for testing
}

// NewMonitor creates a Monitor from the health configuration.
func NewMonitor(reg *registry.Registry, h host.Host, cfg config.Health) *Monitor {
	return &Monitor{
		reg:                reg,
		host:               h,
		interval:           cfg.Interval,
		timeout:            cfg.ProbeTimeout,
		unhealthyThreshold: cfg.UnhealthyThreshold,
		recoveryThreshold:  cfg.RecoveryThreshold,
		now:                time.Now,
	}
}

// SetEventSink attaches the orchestrator event stream.
func (m *Monitor) SetEventSink(sink event.Sink) { m.emit = sink }

// SetMetrics attaches metric instruments.
func (m *Monitor) SetMetrics(mt *swotel.Metrics) { m.metrics = mt }

// SetOnOrphaned registers the callback invoked when an unhealthy transition
// detaches a busy agent's task.
func (m *Monitor) SetOnOrphaned(fn func(ctx context.Context, taskID, agentID, reason string)) {
	m.onOrphaned = fn
}

// SetOnRecover registers a callback invoked after any agent recovers to idle,
// so the scheduler can retry the queue head.
func (m *Monitor) SetOnRecover(fn func(ctx context.Context)) { m.onRecover = fn }

// Run probes on the configured interval until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick runs one probe round. Probes are issued concurrently with a per-probe
// timeout so one stuck agent does not delay the round.
func (m *Monitor) Tick(ctx context.Context) {
	agents := m.reg.Agents("")

	var wg sync.WaitGroup
	results := make([]probe.Result, len(agents))
	for i, a := range agents {
		if a.Status == agent.StatusTerminating {
			continue
		}
		wg.Add(1)
		go func(i int, a agent.Agent) {
			defer wg.Done()
			results[i] = m.probe(ctx, a.ID)
		}(i, a)
	}
	wg.Wait()

	recovered := false
	for _, res := range results {
		if res.AgentID == "" {
			continue
		}
		if m.record(ctx, res) == registry.TransitionRecovered {
			recovered = true
		}
	}
	if recovered && m.onRecover != nil {
		m.onRecover(ctx)
	}
}

func (m *Monitor) probe(ctx context.Context, agentID string) probe.Result {
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	pctx, span := swotel.StartProbeSpan(pctx, agentID)
	defer span.End()

	start := m.now()
	err := m.host.Probe(pctx, agentID)
	res := probe.Result{
		AgentID:   agentID,
		Success:   err == nil,
		Latency:   m.now().Sub(start),
		Timestamp: m.now(),
	}
	if err != nil {
		slog.Debug("probe failed", "agent_id", agentID, "error", err)
		if m.metrics != nil {
			m.metrics.ProbeFailures.Add(ctx, 1)
		}
	}
	return res
}

// record applies one probe result and emits any resulting transition event.
func (m *Monitor) record(ctx context.Context, res probe.Result) registry.Transition {
	transition, orphanedTask := m.reg.RecordProbe(res, m.unhealthyThreshold, m.recoveryThreshold)

	switch transition {
	case registry.TransitionUnhealthy:
		slog.Warn("agent marked unhealthy", "agent_id", res.AgentID, "orphaned_task", orphanedTask)
		m.emitEvent(ctx, event.TypeAgentUnhealthy, res.AgentID)
		if orphanedTask != "" && m.onOrphaned != nil {
			m.onOrphaned(ctx, orphanedTask, res.AgentID, "agent became unhealthy")
		}
	case registry.TransitionRecovered:
		slog.Info("agent recovered", "agent_id", res.AgentID)
		m.emitEvent(ctx, event.TypeAgentRecovered, res.AgentID)
	}
	return transition
}

func (m *Monitor) emitEvent(ctx context.Context, t event.Type, agentID string) {
	if m.emit == nil {
		return
	}
	a, err := m.reg.Get(agentID)
	ev := event.Event{ID: uuid.New().String(), Type: t, AgentID: agentID, CreatedAt: m.now()}
	if err == nil {
		ev.Pool = a.Pool
	}
	m.emit(ctx, ev)
}
