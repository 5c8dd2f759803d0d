package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "swarmforge"

// StartDispatchSpan starts a span covering a task assignment and dispatch.
func StartDispatchSpan(ctx context.Context, taskID, agentID, pool string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("agent.id", agentID),
			attribute.String("pool.name", pool),
		),
	)
}

// StartSpawnSpan starts a span for an agent spawn.
func StartSpawnSpan(ctx context.Context, agentID, pool string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "spawn",
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.String("pool.name", pool),
		),
	)
}

// StartProbeSpan starts a span for a health probe round trip.
func StartProbeSpan(ctx context.Context, agentID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "probe",
		trace.WithAttributes(attribute.String("agent.id", agentID)),
	)
}
