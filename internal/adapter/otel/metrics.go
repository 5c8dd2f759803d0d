package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "swarmforge"

// Metrics holds all SwarmForge metric instruments.
type Metrics struct {
	TasksEnqueued  metric.Int64Counter
	TasksAssigned  metric.Int64Counter
	TasksCompleted metric.Int64Counter
	TasksFailed    metric.Int64Counter
	TasksRejected  metric.Int64Counter
	TaskDuration   metric.Float64Histogram
	QueueDepth     metric.Int64Gauge

	AgentsSpawned  metric.Int64Counter
	AgentsRecycled metric.Int64Counter
	ProbeFailures  metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TasksEnqueued, err = meter.Int64Counter("swarmforge.tasks.enqueued",
		metric.WithDescription("Number of tasks accepted into the queue"))
	if err != nil {
		return nil, err
	}

	m.TasksAssigned, err = meter.Int64Counter("swarmforge.tasks.assigned",
		metric.WithDescription("Number of task-to-agent assignments"))
	if err != nil {
		return nil, err
	}

	m.TasksCompleted, err = meter.Int64Counter("swarmforge.tasks.completed",
		metric.WithDescription("Number of tasks completed successfully"))
	if err != nil {
		return nil, err
	}

	m.TasksFailed, err = meter.Int64Counter("swarmforge.tasks.failed",
		metric.WithDescription("Number of tasks that ended in failure"))
	if err != nil {
		return nil, err
	}

	m.TasksRejected, err = meter.Int64Counter("swarmforge.tasks.rejected",
		metric.WithDescription("Number of tasks rejected at submission"))
	if err != nil {
		return nil, err
	}

	m.TaskDuration, err = meter.Float64Histogram("swarmforge.task.duration_seconds",
		metric.WithDescription("Assigned-to-terminal task duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.QueueDepth, err = meter.Int64Gauge("swarmforge.queue.depth",
		metric.WithDescription("Number of tasks currently queued"))
	if err != nil {
		return nil, err
	}

	m.AgentsSpawned, err = meter.Int64Counter("swarmforge.agents.spawned",
		metric.WithDescription("Number of agents spawned"))
	if err != nil {
		return nil, err
	}

	m.AgentsRecycled, err = meter.Int64Counter("swarmforge.agents.recycled",
		metric.WithDescription("Number of agents recycled"))
	if err != nil {
		return nil, err
	}

	m.ProbeFailures, err = meter.Int64Counter("swarmforge.probes.failed",
		metric.WithDescription("Number of failed health probes"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
