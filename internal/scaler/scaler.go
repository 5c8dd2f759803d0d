// Package scaler adjusts pool occupancy between the configured bounds based
// on queue pressure and idle surplus.
package scaler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/SwarmForge/internal/config"
	"github.com/Strob0t/SwarmForge/internal/domain/agent"
	"github.com/Strob0t/SwarmForge/internal/domain/event"
	"github.com/Strob0t/SwarmForge/internal/lifecycle"
	"github.com/Strob0t/SwarmForge/internal/registry"
	"github.com/Strob0t/SwarmForge/internal/scheduler"
)

// counters tracks a pool's consecutive ticks of sustained pressure in each
// direction. A tick that does not sustain a signal resets its counter, so a
// single spike never triggers a scaling action.
type counters struct {
	up   int
	down int
}

// Scaler evaluates every pool each tick and asks the lifecycle manager to
// spawn or recycle. At most one agent is added per pool per tick and at most
// one removed, keeping occupancy changes gradual.
type Scaler struct {
	reg   *registry.Registry
	sched *scheduler.Scheduler
	lc    *lifecycle.Manager

	interval          time.Duration
	upQueueThreshold  int
	upDwellTicks      int
	downIdleThreshold int
	downDwellTicks    int

	mu     sync.Mutex
	dwells map[string]*counters

	emit event.Sink
	now  func() time.Time // for testing
}

// New creates a Scaler from the scaler configuration.
func New(reg *registry.Registry, sched *scheduler.Scheduler, lc *lifecycle.Manager, cfg config.Scaler) *Scaler {
	return &Scaler{
		reg:               reg,
		sched:             sched,
		lc:                lc,
		interval:          cfg.Interval,
		upQueueThreshold:  cfg.ScaleUpQueueThreshold,
		upDwellTicks:      cfg.ScaleUpDwellTicks,
		downIdleThreshold: cfg.ScaleDownIdleThreshold,
		downDwellTicks:    cfg.ScaleDownDwellTicks,
		dwells:            make(map[string]*counters),
		now:               time.Now,
	}
}

// SetEventSink attaches the orchestrator event stream.
func (s *Scaler) SetEventSink(sink event.Sink) { s.emit = sink }

// Run evaluates on the configured interval until the context is cancelled.
func (s *Scaler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one evaluation over all pools.
func (s *Scaler) Tick(ctx context.Context) {
	for _, p := range s.reg.Pools() {
		s.evaluate(ctx, p.Name)
	}
}

// Rebalance forces one immediate evaluation pass and a dispatch pass. Used
// by the admin surface after manual pool or agent changes.
func (s *Scaler) Rebalance(ctx context.Context) {
	s.Tick(ctx)
	s.sched.Dispatch(ctx)
}

func (s *Scaler) evaluate(ctx context.Context, poolName string) {
	p, err := s.reg.Pool(poolName)
	if err != nil {
		return
	}

	depth := 0
	for _, capability := range p.CapabilityFilter {
		depth += s.sched.QueueDepth(capability)
	}
	idle := len(s.idleAlive(poolName))
	size := s.aliveCount(poolName)

	s.mu.Lock()
	c, ok := s.dwells[poolName]
	if !ok {
		c = &counters{}
		s.dwells[poolName] = c
	}

	if depth > s.upQueueThreshold && size < p.MaxAgents {
		c.up++
	} else {
		c.up = 0
	}
	if idle > s.downIdleThreshold && size > p.MinAgents {
		c.down++
	} else {
		c.down = 0
	}
	scaleUp := c.up >= s.upDwellTicks
	scaleDown := !scaleUp && c.down >= s.downDwellTicks
	if scaleUp {
		c.up = 0
	}
	if scaleDown {
		c.down = 0
	}
	s.mu.Unlock()

	switch {
	case scaleUp:
		s.scaleUp(ctx, poolName, depth)
	case scaleDown:
		s.scaleDown(ctx, poolName, idle)
	}
}

func (s *Scaler) scaleUp(ctx context.Context, poolName string, depth int) {
	a, err := s.lc.Spawn(ctx, poolName, nil)
	if err != nil {
		slog.Error("scale up failed", "pool", poolName, "error", err)
		return
	}

	slog.Info("pool scaled up", "pool", poolName, "agent_id", a.ID, "queue_depth", depth)
	s.emitEvent(ctx, event.TypePoolScaledUp, poolName, a.ID)

	// The new agent may immediately unblock the queue head.
	s.sched.Dispatch(ctx)
}

func (s *Scaler) scaleDown(ctx context.Context, poolName string, idle int) {
	victims := s.idleAlive(poolName)
	if len(victims) == 0 {
		return
	}
	// Oldest idle agent goes first; Agents is sorted by creation time.
	victim := victims[0]

	if err := s.lc.Recycle(ctx, victim.ID, true); err != nil {
		slog.Error("scale down failed", "pool", poolName, "agent_id", victim.ID, "error", err)
		return
	}

	slog.Info("pool scaled down", "pool", poolName, "agent_id", victim.ID, "idle", idle)
	s.emitEvent(ctx, event.TypePoolScaledDown, poolName, victim.ID)
}

// idleAlive returns the pool's idle agents, skipping any already draining.
func (s *Scaler) idleAlive(poolName string) []agent.Agent {
	var out []agent.Agent
	for _, a := range s.reg.IdleAgents(poolName) {
		if a.Status == agent.StatusIdle {
			out = append(out, a)
		}
	}
	return out
}

// aliveCount counts the pool's agents excluding draining ones, so a pool
// mid-recycle is not seen as fuller than it is.
func (s *Scaler) aliveCount(poolName string) int {
	n := 0
	for _, a := range s.reg.Agents(poolName) {
		if a.Status != agent.StatusTerminating {
			n++
		}
	}
	return n
}

func (s *Scaler) emitEvent(ctx context.Context, t event.Type, poolName, agentID string) {
	if s.emit == nil {
		return
	}
	s.emit(ctx, event.Event{
		ID:        uuid.New().String(),
		Type:      t,
		Pool:      poolName,
		AgentID:   agentID,
		CreatedAt: s.now(),
	})
}
