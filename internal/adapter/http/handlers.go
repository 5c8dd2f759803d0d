package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Strob0t/SwarmForge/internal/adapter/ws"
	"github.com/Strob0t/SwarmForge/internal/domain/pool"
	"github.com/Strob0t/SwarmForge/internal/domain/task"
	"github.com/Strob0t/SwarmForge/internal/lifecycle"
	"github.com/Strob0t/SwarmForge/internal/port/eventstore"
	"github.com/Strob0t/SwarmForge/internal/port/messagequeue"
	"github.com/Strob0t/SwarmForge/internal/registry"
	"github.com/Strob0t/SwarmForge/internal/scaler"
	"github.com/Strob0t/SwarmForge/internal/scheduler"
	"github.com/Strob0t/SwarmForge/internal/service"
)

// Handlers holds the admin API handler dependencies.
type Handlers struct {
	Registry     *registry.Registry
	Scheduler    *scheduler.Scheduler
	Lifecycle    *lifecycle.Manager
	Scaler       *scaler.Scaler
	Orchestrator *service.Orchestrator
	Events       eventstore.Store
	Queue        messagequeue.Queue
	Hub          *ws.Hub
}

// poolView is the pool list/detail response shape.
type poolView struct {
	pool.Pool
	IdleAgents int  `json:"idle_agents"`
	BusyAgents int  `json:"busy_agents"`
	QueueDepth int  `json:"queue_depth"`
	Halted     bool `json:"halted,omitempty"`
}

func (h *Handlers) poolView(p pool.Pool) poolView {
	idle, busy := h.Registry.Counts(p.Name)
	depth := 0
	for _, capability := range p.CapabilityFilter {
		depth += h.Scheduler.QueueDepth(capability)
	}
	return poolView{
		Pool:       p,
		IdleAgents: idle,
		BusyAgents: busy,
		QueueDepth: depth,
		Halted:     h.Scheduler.Halted(p.Name),
	}
}

// ListPools returns all pools with occupancy and queue pressure.
func (h *Handlers) ListPools(w http.ResponseWriter, _ *http.Request) {
	pools := h.Registry.Pools()
	out := make([]poolView, 0, len(pools))
	for _, p := range pools {
		out = append(out, h.poolView(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// CreatePool registers a new pool and brings it up to its minimum occupancy.
func (h *Handlers) CreatePool(w http.ResponseWriter, r *http.Request) {
	spec, ok := readJSON[pool.Spec](w, r)
	if !ok {
		return
	}

	if err := h.Registry.RegisterPool(spec); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.Lifecycle.EnsureMin(r.Context(), spec.Name); err != nil {
		// The pool exists; minimum occupancy will be restored by the next
		// scaling pass. Report the partial state.
		writeDomainError(w, err)
		return
	}

	p, err := h.Registry.Pool(spec.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.poolView(p))
}

// GetPool returns one pool by name.
func (h *Handlers) GetPool(w http.ResponseWriter, r *http.Request) {
	p, err := h.Registry.Pool(urlParam(r, "name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.poolView(p))
}

type spawnRequest struct {
	Capabilities []string `json:"capabilities,omitempty"`
}

// SpawnAgent starts a new agent in the pool.
func (h *Handlers) SpawnAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[spawnRequest](w, r)
	if !ok {
		return
	}

	a, err := h.Lifecycle.Spawn(r.Context(), urlParam(r, "name"), req.Capabilities)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// ListAgents returns agents, optionally filtered by ?pool=.
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Registry.Agents(r.URL.Query().Get("pool")))
}

// GetAgent returns one agent by id.
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := h.Registry.Get(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type recycleRequest struct {
	Mode string `json:"mode,omitempty"` // "graceful" (default) or "hard"
}

// RecycleAgent drains and replaces an agent.
func (h *Handlers) RecycleAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[recycleRequest](w, r)
	if !ok {
		return
	}
	if req.Mode != "" && req.Mode != "graceful" && req.Mode != "hard" {
		writeError(w, http.StatusBadRequest, "mode must be graceful or hard")
		return
	}

	if err := h.Lifecycle.Recycle(r.Context(), urlParam(r, "id"), req.Mode != "hard"); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recycling"})
}

// SubmitTask enqueues a task from the HTTP surface.
func (h *Handlers) SubmitTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[task.SubmitRequest](w, r)
	if !ok {
		return
	}

	t, err := h.Scheduler.Enqueue(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, t)
}

// ListTasks returns all known tasks.
func (h *Handlers) ListTasks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Scheduler.Tasks())
}

// GetTask returns one task by id.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Scheduler.Task(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// CancelTask cancels a queued or assigned task.
func (h *Handlers) CancelTask(w http.ResponseWriter, r *http.Request) {
	if err := h.Scheduler.Cancel(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// RequeueTask resets a failed task to queued.
func (h *Handlers) RequeueTask(w http.ResponseWriter, r *http.Request) {
	if err := h.Scheduler.Requeue(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	t, err := h.Scheduler.Task(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// GetTaskResult returns a retained terminal result.
func (h *Handlers) GetTaskResult(w http.ResponseWriter, r *http.Request) {
	res, ok := h.Orchestrator.Result(r.Context(), urlParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no retained result for task")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListEvents returns recent orchestrator events from the audit trail.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.Events == nil {
		writeError(w, http.StatusNotFound, "audit trail not configured")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := h.Events.ListRecent(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// Rebalance forces an immediate dispatch pass and scaling evaluation.
func (h *Handlers) Rebalance(w http.ResponseWriter, r *http.Request) {
	h.Scaler.Rebalance(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "rebalanced"})
}

// Health reports control plane status plus dependency connectivity.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	type healthStatus struct {
		Status      string `json:"status"`
		NATS        string `json:"nats"`
		HostBreaker string `json:"host_breaker"`
		QueuedTasks int    `json:"queued_tasks"`
		Agents      int    `json:"agents"`
		WSClients   int    `json:"ws_clients"`
	}

	natsStatus := "connected"
	if h.Queue == nil || !h.Queue.IsConnected() {
		natsStatus = "disconnected"
	}

	status := healthStatus{
		Status:      "ok",
		NATS:        natsStatus,
		HostBreaker: h.Lifecycle.BreakerState().String(),
		QueuedTasks: h.Scheduler.QueueLen(),
		Agents:      len(h.Registry.Agents("")),
	}
	if h.Hub != nil {
		status.WSClients = h.Hub.ConnectionCount()
	}
	if natsStatus == "disconnected" {
		status.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(status)
}
