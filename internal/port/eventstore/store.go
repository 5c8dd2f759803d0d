// Package eventstore defines the audit trail store port (interface).
package eventstore

import (
	"context"

	"github.com/Strob0t/SwarmForge/internal/domain/event"
)

// Store persists orchestrator events for postmortem inspection.
// Implementations must be safe for concurrent use; append failures are
// logged by callers, never propagated into scheduling decisions.
type Store interface {
	// Append records a single event.
	Append(ctx context.Context, ev event.Event) error

	// ListRecent returns up to limit events, newest first.
	ListRecent(ctx context.Context, limit int) ([]event.Event, error)

	// Close releases the underlying connection pool.
	Close()
}
