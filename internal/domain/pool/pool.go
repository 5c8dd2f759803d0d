// Package pool defines the Pool domain entity.
package pool

import (
	"fmt"

	"github.com/Strob0t/SwarmForge/internal/domain"
)

// Pool is a named, capability-scoped group of agents with size bounds.
// The Agents set holds ids only; agent state lives in the registry's
// agent table.
type Pool struct {
	Name             string   `json:"name"`
	CapabilityFilter []string `json:"capability_filter"`
	MinAgents        int      `json:"min_agents"`
	MaxAgents        int      `json:"max_agents"`
	Agents           []string `json:"agents"`
}

// Serves reports whether tasks requiring the given capability are eligible
// for this pool.
func (p *Pool) Serves(capability string) bool {
	for _, c := range p.CapabilityFilter {
		if c == capability {
			return true
		}
	}
	return false
}

// Spec describes a pool to be registered, typically from configuration.
type Spec struct {
	Name             string   `yaml:"name" json:"name"`
	CapabilityFilter []string `yaml:"capabilities" json:"capability_filter"`
	MinAgents        int      `yaml:"min_agents" json:"min_agents"`
	MaxAgents        int      `yaml:"max_agents" json:"max_agents"`
}

// Validate checks the spec's bounds and name.
func (s *Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: pool name is required", domain.ErrInvalidBounds)
	}
	if len(s.CapabilityFilter) == 0 {
		return fmt.Errorf("%w: pool %s has no capability filter", domain.ErrInvalidBounds, s.Name)
	}
	if s.MinAgents < 0 || s.MinAgents > s.MaxAgents {
		return fmt.Errorf("%w: pool %s min=%d max=%d", domain.ErrInvalidBounds, s.Name, s.MinAgents, s.MaxAgents)
	}
	return nil
}
