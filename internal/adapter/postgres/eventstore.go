package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/SwarmForge/internal/domain/event"
)

// EventStore implements the audit trail store using PostgreSQL (append-only).
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append inserts a new event into the orchestrator_events table.
func (s *EventStore) Append(ctx context.Context, ev event.Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO orchestrator_events (id, event_type, pool, agent_id, task_id, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, string(ev.Type), nullIfEmpty(ev.Pool), nullIfEmpty(ev.AgentID), nullIfEmpty(ev.TaskID), ev.Payload, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListRecent returns up to limit events, newest first.
func (s *EventStore) ListRecent(ctx context.Context, limit int) ([]event.Event, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, event_type, COALESCE(pool, ''), COALESCE(agent_id, ''), COALESCE(task_id, ''), payload, created_at
		 FROM orchestrator_events ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var ev event.Event
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.Pool, &ev.AgentID, &ev.TaskID, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close releases the underlying connection pool.
func (s *EventStore) Close() {
	s.pool.Close()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
