// Package httpapi exposes the orchestrator control surface over REST.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ade/warden/internal/registry"
	"github.com/ade/warden/internal/scheduler"
)

// API holds the handler dependencies
type API struct {
	Reg    *registry.Registry
	Sched  *scheduler.Scheduler
	Reload func() error
	Log    zerolog.Logger
}

// Router builds the root router and mounts the versioned API under /api/v1
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not_found","message":"Use a versioned path like /api/v1/..."}`))
	})

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Post("/agents", a.registerAgent)
		v1.Get("/agents", a.listAgents)
		v1.Get("/agents/{name}", a.getAgent)
		v1.Delete("/agents/{name}", a.unregisterAgent)
		v1.Post("/agents/{name}/heartbeat", a.heartbeat)
		v1.Post("/agents/{name}/status", a.setAgentStatus)
		v1.Post("/agents/{name}/retire", a.retireAgent)
		v1.Post("/agents/{name}/unretire", a.unretireAgent)
		v1.Get("/agents/{name}/next", a.nextTask)

		v1.Post("/tasks", a.submitTask)
		v1.Get("/tasks", a.listTasks)
		v1.Get("/tasks/{id}", a.getTask)
		v1.Post("/tasks/{id}/complete", a.completeTask)
		v1.Post("/tasks/{id}/cancel", a.cancelTask)
		v1.Post("/tasks/{id}/pause", a.pauseTask)
		v1.Post("/tasks/{id}/resume", a.resumeTask)
		v1.Post("/tasks/{id}/clear-failures", a.clearFailures)

		v1.Get("/queue", a.queueOrder)
		v1.Post("/plan/reload", a.reloadPlan)
		v1.Get("/status", a.status)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrUnknownAgent), errors.Is(err, scheduler.ErrUnknownTask):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrDuplicateAgent), errors.Is(err, scheduler.ErrInvalidTransition),
		errors.Is(err, scheduler.ErrAgentBusy):
		return http.StatusConflict
	case errors.Is(err, scheduler.ErrInvalidTask):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}
