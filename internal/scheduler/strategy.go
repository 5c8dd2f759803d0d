package scheduler

import (
	"fmt"

	"github.com/Strob0t/SwarmForge/internal/domain/agent"
	"github.com/Strob0t/SwarmForge/internal/domain/task"
)

// Strategy selects one agent from a non-empty eligible set. Implementations
// are not safe for concurrent use; the Scheduler serializes Select calls.
// Queue priority ordering composes with every strategy: the strategy only
// picks the agent, never the task.
type Strategy interface {
	Name() string
	Select(t *task.Task, candidates []agent.Agent) agent.Agent
}

// NewStrategy returns the strategy implementation for the given config name.
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case "round_robin":
		return &roundRobin{cursors: make(map[string]int)}, nil
	case "least_loaded":
		return leastLoaded{}, nil
	case "capability_match":
		return capabilityMatch{}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

// roundRobin rotates a per-pool cursor over the eligible set.
type roundRobin struct {
	cursors map[string]int
}

func (s *roundRobin) Name() string { return "round_robin" }

func (s *roundRobin) Select(_ *task.Task, candidates []agent.Agent) agent.Agent {
	// Group candidates by pool, preserving first-seen pool order.
	byPool := make(map[string][]agent.Agent)
	var order []string
	for _, a := range candidates {
		if _, ok := byPool[a.Pool]; !ok {
			order = append(order, a.Pool)
		}
		byPool[a.Pool] = append(byPool[a.Pool], a)
	}

	// Prefer the pool with the most idle candidates to spread load when a
	// capability is served by several pools.
	poolName := order[0]
	for _, name := range order[1:] {
		if len(byPool[name]) > len(byPool[poolName]) {
			poolName = name
		}
	}

	group := byPool[poolName]
	cursor := s.cursors[poolName]
	picked := group[cursor%len(group)]
	s.cursors[poolName] = cursor + 1
	return picked
}

// leastLoaded picks the agent with the fewest completed tasks since its last
// recycle, a proxy for the freshest instance.
type leastLoaded struct{}

func (leastLoaded) Name() string { return "least_loaded" }

func (leastLoaded) Select(_ *task.Task, candidates []agent.Agent) agent.Agent {
	best := candidates[0]
	for _, a := range candidates[1:] {
		if a.TasksCompleted < best.TasksCompleted ||
			(a.TasksCompleted == best.TasksCompleted && a.CreatedAt.Before(best.CreatedAt)) {
			best = a
		}
	}
	return best
}

// capabilityMatch prefers the agent whose capability set is the smallest
// superset of the requirement, keeping broadly-capable agents free for
// narrower work. Ties fall back to least loaded.
type capabilityMatch struct{}

func (capabilityMatch) Name() string { return "capability_match" }

func (capabilityMatch) Select(_ *task.Task, candidates []agent.Agent) agent.Agent {
	best := candidates[0]
	for _, a := range candidates[1:] {
		switch {
		case len(a.Capabilities) < len(best.Capabilities):
			best = a
		case len(a.Capabilities) == len(best.Capabilities) && a.TasksCompleted < best.TasksCompleted:
			best = a
		}
	}
	return best
}
