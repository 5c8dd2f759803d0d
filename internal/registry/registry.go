// Package registry is the single source of truth for pool and agent
// membership. All mutations go through it so invariants are checked once,
// under one lock: pool occupancy bounds and the agent<->task bijection are
// never observable in a violated intermediate state.
package registry

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/SwarmForge/internal/domain"
	"github.com/Strob0t/SwarmForge/internal/domain/agent"
	"github.com/Strob0t/SwarmForge/internal/domain/pool"
	"github.com/Strob0t/SwarmForge/internal/domain/probe"
)

// Transition reports the health state change produced by a probe record.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionUnhealthy
	TransitionRecovered
)

// Registry holds the agent and pool tables. Agents and pools are flat,
// id-keyed entries; cross-references (agent->task, pool->agents) are ids,
// not pointers.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*agent.Agent
	pools  map[string]*pool.Pool
	now    func() time.Time // for testing
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		agents: make(map[string]*agent.Agent),
		pools:  make(map[string]*pool.Pool),
		now:    time.Now,
	}
}

// RegisterPool adds a new pool. Fails when the spec bounds are invalid or the
// name is taken.
func (r *Registry) RegisterPool(spec pool.Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pools[spec.Name]; ok {
		return fmt.Errorf("%w: %s", domain.ErrPoolExists, spec.Name)
	}
	r.pools[spec.Name] = &pool.Pool{
		Name:             spec.Name,
		CapabilityFilter: slices.Clone(spec.CapabilityFilter),
		MinAgents:        spec.MinAgents,
		MaxAgents:        spec.MaxAgents,
	}
	return nil
}

// AddAgent creates an agent record in the given pool. Fails with
// ErrCapacityExceeded when the pool is at max_agents. Empty capabilities
// default to the pool's capability filter.
func (r *Registry) AddAgent(poolName string, capabilities []string) (agent.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[poolName]
	if !ok {
		return agent.Agent{}, fmt.Errorf("pool %s: %w", poolName, domain.ErrNotFound)
	}
	if len(p.Agents) >= p.MaxAgents {
		return agent.Agent{}, fmt.Errorf("%w: pool %s at max %d", domain.ErrCapacityExceeded, poolName, p.MaxAgents)
	}

	if len(capabilities) == 0 {
		capabilities = p.CapabilityFilter
	}
	a := &agent.Agent{
		ID:           uuid.New().String(),
		Pool:         poolName,
		Capabilities: slices.Clone(capabilities),
		Status:       agent.StatusIdle,
		CreatedAt:    r.now(),
	}
	r.agents[a.ID] = a
	p.Agents = append(p.Agents, a.ID)
	return *a, nil
}

// RemoveAgent deletes an agent record. A busy agent is rejected with
// ErrAgentBusy unless force is set; forced removal returns the orphaned task
// id so the caller can fail it.
func (r *Registry) RemoveAgent(id string, force bool) (orphanedTask string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return "", fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	if a.CurrentTask != "" && !force {
		return "", fmt.Errorf("%w: agent %s has task %s", domain.ErrAgentBusy, id, a.CurrentTask)
	}

	orphanedTask = a.CurrentTask
	delete(r.agents, id)
	if p, ok := r.pools[a.Pool]; ok {
		p.Agents = slices.DeleteFunc(p.Agents, func(s string) bool { return s == id })
	}
	return orphanedTask, nil
}

// Get returns a copy of the agent record.
func (r *Registry) Get(id string) (agent.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return agent.Agent{}, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	return *a, nil
}

// SetStatus validates and applies a status transition.
func (r *Registry) SetStatus(id string, status agent.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	if a.Status == status {
		return nil
	}
	if !agent.CanTransition(a.Status, status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, a.Status, status)
	}
	a.Status = status
	return nil
}

// BeginTerminate moves the agent to Terminating and returns the status and
// task it held at that instant, under one lock acquisition. Callers branch on
// the returned snapshot, so an assignment cannot land between a read and the
// status change. Terminating an already-Terminating agent is a no-op.
func (r *Registry) BeginTerminate(id string) (prev agent.Status, currentTask string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return "", "", fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	prev, currentTask = a.Status, a.CurrentTask
	a.Status = agent.StatusTerminating
	return prev, currentTask, nil
}

// Assign marks an idle agent busy with the given task. The agent->task link
// and the busy status change are applied under one lock acquisition, so no
// reader observes a half-assigned agent.
func (r *Registry) Assign(agentID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}
	if a.Status != agent.StatusIdle {
		return fmt.Errorf("%w: agent %s is %s", domain.ErrInvalidTransition, agentID, a.Status)
	}
	a.Status = agent.StatusBusy
	a.CurrentTask = taskID
	return nil
}

// Unassign reverts a just-made assignment after a dispatch side effect
// failed. Unlike Release it does not count a completed task.
func (r *Registry) Unassign(agentID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}
	if a.CurrentTask != taskID {
		return fmt.Errorf("agent %s does not own task %s: %w", agentID, taskID, domain.ErrInvalidTransition)
	}
	a.CurrentTask = ""
	if a.Status == agent.StatusBusy {
		a.Status = agent.StatusIdle
	}
	return nil
}

// Release clears the agent's task after completion or failure, increments
// the lifetime counter, and returns the updated record. A Terminating agent
// keeps its status so the drain wait can observe the cleared task.
func (r *Registry) Release(agentID, taskID string) (agent.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return agent.Agent{}, fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}
	if a.CurrentTask != taskID {
		return agent.Agent{}, fmt.Errorf("agent %s does not own task %s: %w", agentID, taskID, domain.ErrInvalidTransition)
	}
	a.CurrentTask = ""
	a.TasksCompleted++
	if a.Status == agent.StatusBusy {
		a.Status = agent.StatusIdle
	}
	return *a, nil
}

// RecordProbe applies a probe result to the agent's health counters and
// returns the resulting transition. When a busy agent crosses the unhealthy
// threshold its in-flight task is detached and returned; the caller decides
// whether to requeue it.
func (r *Registry) RecordProbe(res probe.Result, unhealthyThreshold, recoveryThreshold int) (Transition, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[res.AgentID]
	if !ok || a.Status == agent.StatusTerminating {
		return TransitionNone, ""
	}
	a.LastHealthCheckAt = res.Timestamp

	if res.Success {
		a.ConsecutiveSuccesses++
		a.ConsecutiveFailures = 0
		if a.Status == agent.StatusUnhealthy && a.ConsecutiveSuccesses >= recoveryThreshold {
			a.Status = agent.StatusIdle
			return TransitionRecovered, ""
		}
		return TransitionNone, ""
	}

	a.ConsecutiveFailures++
	a.ConsecutiveSuccesses = 0
	if a.ConsecutiveFailures < unhealthyThreshold || a.Status == agent.StatusUnhealthy {
		return TransitionNone, ""
	}

	orphaned := a.CurrentTask
	a.CurrentTask = ""
	a.Status = agent.StatusUnhealthy
	return TransitionUnhealthy, orphaned
}

// FindEligible returns copies of the idle agents whose pool serves the given
// capability and whose own capability set includes it. Unhealthy, busy and
// terminating agents are excluded.
func (r *Registry) FindEligible(capability string) []agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []agent.Agent
	for _, p := range r.pools {
		if !p.Serves(capability) {
			continue
		}
		for _, id := range p.Agents {
			a := r.agents[id]
			if a != nil && a.Status == agent.StatusIdle && a.Has(capability) {
				out = append(out, *a)
			}
		}
	}
	return out
}

// HasPoolFor reports whether any registered pool serves the capability.
// Tasks with an unmatched capability are rejected at enqueue time.
func (r *Registry) HasPoolFor(capability string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.pools {
		if p.Serves(capability) {
			return true
		}
	}
	return false
}

// PoolsFor returns the names of pools serving the capability.
func (r *Registry) PoolsFor(capability string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for _, p := range r.pools {
		if p.Serves(capability) {
			names = append(names, p.Name)
		}
	}
	return names
}

// Counts returns the idle and busy agent counts for a pool.
func (r *Registry) Counts(poolName string) (idle, busy int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pools[poolName]
	if !ok {
		return 0, 0
	}
	for _, id := range p.Agents {
		switch r.agents[id].Status {
		case agent.StatusIdle:
			idle++
		case agent.StatusBusy:
			busy++
		}
	}
	return idle, busy
}

// Pool returns a copy of the named pool.
func (r *Registry) Pool(name string) (pool.Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pools[name]
	if !ok {
		return pool.Pool{}, fmt.Errorf("pool %s: %w", name, domain.ErrNotFound)
	}
	cp := *p
	cp.Agents = slices.Clone(p.Agents)
	cp.CapabilityFilter = slices.Clone(p.CapabilityFilter)
	return cp, nil
}

// Pools returns copies of all pools, sorted by name.
func (r *Registry) Pools() []pool.Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]pool.Pool, 0, len(r.pools))
	for _, p := range r.pools {
		cp := *p
		cp.Agents = slices.Clone(p.Agents)
		cp.CapabilityFilter = slices.Clone(p.CapabilityFilter)
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b pool.Pool) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Agents returns copies of all agents in the named pool; an empty name
// returns every agent. Sorted by creation time then id for stable listings.
func (r *Registry) Agents(poolName string) []agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []agent.Agent
	for _, a := range r.agents {
		if poolName == "" || a.Pool == poolName {
			out = append(out, *a)
		}
	}
	slices.SortFunc(out, func(a, b agent.Agent) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// IdleAgents returns copies of the idle agents in the named pool.
func (r *Registry) IdleAgents(poolName string) []agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pools[poolName]
	if !ok {
		return nil
	}
	var out []agent.Agent
	for _, id := range p.Agents {
		if a := r.agents[id]; a != nil && a.Status == agent.StatusIdle {
			out = append(out, *a)
		}
	}
	return out
}
