package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Pools
		r.Get("/pools", h.ListPools)
		r.Post("/pools", h.CreatePool)
		r.Get("/pools/{name}", h.GetPool)
		r.Post("/pools/{name}/agents", h.SpawnAgent)

		// Agents
		r.Get("/agents", h.ListAgents)
		r.Get("/agents/{id}", h.GetAgent)
		r.Post("/agents/{id}/recycle", h.RecycleAgent)

		// Tasks
		r.Post("/tasks", h.SubmitTask)
		r.Get("/tasks", h.ListTasks)
		r.Get("/tasks/{id}", h.GetTask)
		r.Post("/tasks/{id}/cancel", h.CancelTask)
		r.Post("/tasks/{id}/requeue", h.RequeueTask)
		r.Get("/tasks/{id}/result", h.GetTaskResult)

		// Events (audit trail)
		r.Get("/events", h.ListEvents)

		// Scheduling
		r.Post("/rebalance", h.Rebalance)
	})
}
