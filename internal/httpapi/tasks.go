package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ade/warden/internal/models"
	"github.com/ade/warden/internal/scheduler"
)

type submitReq struct {
	Name         string             `json:"name"`
	Mode         string             `json:"mode"`
	Agent        string             `json:"agent"`
	Priority     models.Priority    `json:"priority"`
	ScheduledFor time.Time          `json:"scheduled_for"`
	Estimated    string             `json:"estimated"` // Go duration, e.g. "45m"
	Constraints  models.Constraints `json:"constraints"`
	Rules        []models.Rule      `json:"rules"`
	Metadata     map[string]string  `json:"metadata"`
}

type completeReq struct {
	Success bool               `json:"success"`
	Error   string             `json:"error"`
	Metrics map[string]float64 `json:"metrics"`
}

// submitTask handles POST /api/v1/tasks
func (a *API) submitTask(w http.ResponseWriter, r *http.Request) {
	var req submitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	spec := scheduler.Spec{
		Name:         req.Name,
		Mode:         req.Mode,
		Agent:        req.Agent,
		Priority:     req.Priority,
		ScheduledFor: req.ScheduledFor,
		Constraints:  req.Constraints,
		Rules:        req.Rules,
		Metadata:     req.Metadata,
	}
	if req.Estimated != "" {
		d, err := time.ParseDuration(req.Estimated)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid estimated: %v", err), http.StatusBadRequest)
			return
		}
		spec.Estimated = d
	}
	t, err := a.Sched.Submit(spec)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// listTasks handles GET /api/v1/tasks
func (a *API) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := scheduler.ListFilter{
		Status:   models.TaskStatus(q.Get("status")),
		Agent:    q.Get("agent"),
		Priority: models.Priority(q.Get("priority")),
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": a.Sched.List(f)})
}

// getTask handles GET /api/v1/tasks/{id}
func (a *API) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := a.Sched.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// completeTask handles POST /api/v1/tasks/{id}/complete
func (a *API) completeTask(w http.ResponseWriter, r *http.Request) {
	var req completeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.Sched.Complete(id, req.Success, req.Error, req.Metrics); err != nil {
		writeErr(w, err)
		return
	}
	t, err := a.Sched.Get(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) taskAction(w http.ResponseWriter, r *http.Request, fn func(string) error) {
	id := chi.URLParam(r, "id")
	if err := fn(id); err != nil {
		writeErr(w, err)
		return
	}
	t, err := a.Sched.Get(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// cancelTask handles POST /api/v1/tasks/{id}/cancel
func (a *API) cancelTask(w http.ResponseWriter, r *http.Request) {
	a.taskAction(w, r, a.Sched.Cancel)
}

// pauseTask handles POST /api/v1/tasks/{id}/pause
func (a *API) pauseTask(w http.ResponseWriter, r *http.Request) {
	a.taskAction(w, r, a.Sched.Pause)
}

// resumeTask handles POST /api/v1/tasks/{id}/resume
func (a *API) resumeTask(w http.ResponseWriter, r *http.Request) {
	a.taskAction(w, r, a.Sched.Resume)
}

// clearFailures handles POST /api/v1/tasks/{id}/clear-failures
func (a *API) clearFailures(w http.ResponseWriter, r *http.Request) {
	a.taskAction(w, r, a.Sched.ClearFailures)
}

// queueOrder handles GET /api/v1/queue and returns pending tasks in the
// order the dispatcher would consider them right now
func (a *API) queueOrder(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": a.Sched.PendingOrder(time.Now().UTC())})
}
