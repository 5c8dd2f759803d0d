package scaler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/SwarmForge/internal/config"
	"github.com/Strob0t/SwarmForge/internal/domain/pool"
	"github.com/Strob0t/SwarmForge/internal/domain/task"
	"github.com/Strob0t/SwarmForge/internal/lifecycle"
	"github.com/Strob0t/SwarmForge/internal/registry"
	"github.com/Strob0t/SwarmForge/internal/resilience"
	"github.com/Strob0t/SwarmForge/internal/scheduler"
)

// okHost accepts every host call and records dispatches.
type okHost struct {
	mu         sync.Mutex
	dispatched []string
}

func (h *okHost) StartAgent(context.Context, string, string, []string) error { return nil }
func (h *okHost) StopAgent(context.Context, string) error                    { return nil }
func (h *okHost) CancelTask(context.Context, string, string) error           { return nil }
func (h *okHost) Probe(context.Context, string) error                        { return nil }

func (h *okHost) DispatchTask(_ context.Context, _ string, t *task.Task) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dispatched = append(h.dispatched, t.ID)
	return nil
}

func testScalerConfig() config.Scaler {
	return config.Scaler{
		Interval:               time.Second,
		ScaleUpQueueThreshold:  2,
		ScaleUpDwellTicks:      2,
		ScaleDownIdleThreshold: 1,
		ScaleDownDwellTicks:    2,
	}
}

type fixture struct {
	reg   *registry.Registry
	sched *scheduler.Scheduler
	lc    *lifecycle.Manager
	scale *Scaler
	host  *okHost
}

func newFixture(t *testing.T, spec pool.Spec) *fixture {
	t.Helper()
	reg := registry.New()
	if err := reg.RegisterPool(spec); err != nil {
		t.Fatalf("RegisterPool: %v", err)
	}

	h := &okHost{}
	strategy, err := scheduler.NewStrategy("round_robin")
	if err != nil {
		t.Fatalf("NewStrategy: %v", err)
	}
	sched := scheduler.New(reg, h, config.Scheduler{MaxHeadScan: 32, CancelAckWait: time.Second}, strategy)
	lc := lifecycle.NewManager(reg, h, resilience.NewBreaker(5, time.Minute), config.Lifecycle{DrainTimeout: time.Minute})

	return &fixture{
		reg:   reg,
		sched: sched,
		lc:    lc,
		scale: New(reg, sched, lc, testScalerConfig()),
		host:  h,
	}
}

func builderSpec(minAgents, maxAgents int) pool.Spec {
	return pool.Spec{
		Name:             "builders",
		CapabilityFilter: []string{"go"},
		MinAgents:        minAgents,
		MaxAgents:        maxAgents,
	}
}

func enqueueN(t *testing.T, f *fixture, n int) {
	t.Helper()
	for range n {
		if _, err := f.sched.Enqueue(context.Background(), task.SubmitRequest{RequiredCapability: "go"}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
}

func TestScaleUpRequiresSustainedPressure(t *testing.T) {
	f := newFixture(t, builderSpec(0, 3))
	ctx := context.Background()
	enqueueN(t, f, 4)

	f.scale.Tick(ctx)
	if n := len(f.reg.Agents("builders")); n != 0 {
		t.Fatalf("expected no spawn after 1 tick, got %d agents", n)
	}

	f.scale.Tick(ctx)
	if n := len(f.reg.Agents("builders")); n != 1 {
		t.Fatalf("expected 1 agent after dwell, got %d", n)
	}

	// The new agent immediately picks up work.
	f.host.mu.Lock()
	dispatched := len(f.host.dispatched)
	f.host.mu.Unlock()
	if dispatched != 1 {
		t.Fatalf("expected 1 dispatch after scale up, got %d", dispatched)
	}
}

func TestScaleUpAddsAtMostOnePerTick(t *testing.T) {
	f := newFixture(t, builderSpec(0, 5))
	ctx := context.Background()
	enqueueN(t, f, 10)

	f.scale.Tick(ctx)
	f.scale.Tick(ctx)
	if n := len(f.reg.Agents("builders")); n != 1 {
		t.Fatalf("expected exactly 1 agent even with deep backlog, got %d", n)
	}
}

func TestTransientSpikeDoesNotScale(t *testing.T) {
	f := newFixture(t, builderSpec(0, 3))
	ctx := context.Background()

	tasks := make([]string, 0, 4)
	for range 4 {
		tk, err := f.sched.Enqueue(ctx, task.SubmitRequest{RequiredCapability: "go"})
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		tasks = append(tasks, tk.ID)
	}

	f.scale.Tick(ctx)

	// The spike drains before the dwell window closes.
	for _, id := range tasks {
		if err := f.sched.Cancel(ctx, id); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
	}
	f.scale.Tick(ctx)

	// Renewed pressure starts the dwell count from zero.
	enqueueN(t, f, 4)
	f.scale.Tick(ctx)

	if n := len(f.reg.Agents("builders")); n != 0 {
		t.Fatalf("expected no spawn from interrupted dwell, got %d agents", n)
	}
}

func TestScaleUpNeverExceedsMaximum(t *testing.T) {
	f := newFixture(t, builderSpec(0, 1))
	ctx := context.Background()
	enqueueN(t, f, 6)

	for range 6 {
		f.scale.Tick(ctx)
	}

	if n := len(f.reg.Agents("builders")); n != 1 {
		t.Fatalf("expected pool capped at 1 agent, got %d", n)
	}
}

func TestScaleDownRecyclesOldestIdle(t *testing.T) {
	f := newFixture(t, builderSpec(0, 5))
	ctx := context.Background()

	older, _ := f.reg.AddAgent("builders", nil)
	time.Sleep(2 * time.Millisecond)
	newer, _ := f.reg.AddAgent("builders", nil)

	f.scale.Tick(ctx)
	if n := len(f.reg.Agents("builders")); n != 2 {
		t.Fatalf("expected no recycle after 1 tick, got %d agents", n)
	}

	f.scale.Tick(ctx)
	agents := f.reg.Agents("builders")
	if len(agents) != 1 {
		t.Fatalf("expected 1 agent after scale down, got %d", len(agents))
	}
	if agents[0].ID != newer.ID {
		t.Fatalf("expected oldest agent %s recycled, survivor is %s", older.ID, agents[0].ID)
	}
}

func TestScaleDownNeverBelowMinimum(t *testing.T) {
	f := newFixture(t, builderSpec(2, 5))
	ctx := context.Background()

	_, _ = f.reg.AddAgent("builders", nil)
	_, _ = f.reg.AddAgent("builders", nil)

	for range 6 {
		f.scale.Tick(ctx)
	}

	if n := len(f.reg.Agents("builders")); n != 2 {
		t.Fatalf("expected pool held at minimum 2, got %d", n)
	}
}

func TestRebalanceDispatchesQueuedWork(t *testing.T) {
	f := newFixture(t, builderSpec(0, 3))
	ctx := context.Background()

	tk, err := f.sched.Enqueue(ctx, task.SubmitRequest{RequiredCapability: "go"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// An agent added out of band is only picked up on the next pass.
	_, _ = f.reg.AddAgent("builders", nil)
	f.scale.Rebalance(ctx)

	got, _ := f.sched.Task(tk.ID)
	if got.Status != task.StatusAssigned {
		t.Fatalf("expected task assigned after rebalance, got %s", got.Status)
	}
}
