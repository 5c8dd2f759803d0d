// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrPoolExists indicates a pool with the same name is already registered.
var ErrPoolExists = errors.New("pool already exists")

// ErrInvalidBounds indicates pool size bounds that violate 0 <= min <= max.
var ErrInvalidBounds = errors.New("invalid pool bounds")

// ErrCapacityExceeded indicates a spawn would push a pool past max_agents.
// Not fatal: the caller may retry once the pool has headroom.
var ErrCapacityExceeded = errors.New("pool capacity exceeded")

// ErrNoEligiblePool indicates a task capability that no registered pool serves.
// Rejected at enqueue time, never left queued.
var ErrNoEligiblePool = errors.New("no eligible pool for capability")

// ErrAgentBusy indicates an attempt to remove an agent with an in-flight task
// without the force flag.
var ErrAgentBusy = errors.New("agent is busy")

// ErrInvalidTransition indicates an agent status change the state machine
// does not allow.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrHostingFailure indicates the agent-hosting side effect failed; the
// registry entry has been rolled back.
var ErrHostingFailure = errors.New("agent hosting failure")
