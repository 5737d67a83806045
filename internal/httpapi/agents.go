package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ade/warden/internal/models"
	"github.com/ade/warden/internal/registry"
)

type registerReq struct {
	Name              string   `json:"name"`
	MachineID         string   `json:"machine_id"`
	WindowID          string   `json:"window_id"`
	Capabilities      []string `json:"capabilities"`
	HeartbeatInterval string   `json:"heartbeat_interval"` // Go duration, e.g. "30s"
	Replace           bool     `json:"replace"`
}

type heartbeatReq struct {
	Status  models.AgentStatus `json:"status"`
	Mode    string             `json:"mode"`
	Metrics map[string]float64 `json:"metrics"`
}

type statusReq struct {
	Status models.AgentStatus `json:"status"`
}

// registerAgent handles POST /api/v1/agents
func (a *API) registerAgent(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	var cfg registry.AgentConfig
	if req.HeartbeatInterval != "" {
		d, err := time.ParseDuration(req.HeartbeatInterval)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid heartbeat_interval: %v", err), http.StatusBadRequest)
			return
		}
		cfg.HeartbeatInterval = d
	}
	if err := a.Reg.Register(req.Name, req.MachineID, req.WindowID, req.Capabilities, cfg, req.Replace); err != nil {
		writeErr(w, err)
		return
	}
	agent, err := a.Reg.Get(req.Name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

// listAgents handles GET /api/v1/agents
func (a *API) listAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := registry.Filter{
		Capability: q.Get("capability"),
		Status:     models.AgentStatus(q.Get("status")),
		Health:     models.Health(q.Get("health")),
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": a.Reg.Query(f)})
}

// getAgent handles GET /api/v1/agents/{name}
func (a *API) getAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := a.Reg.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// unregisterAgent handles DELETE /api/v1/agents/{name}
func (a *API) unregisterAgent(w http.ResponseWriter, r *http.Request) {
	if err := a.Reg.Unregister(chi.URLParam(r, "name")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// heartbeat handles POST /api/v1/agents/{name}/heartbeat
func (a *API) heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if req.Status != "" && !req.Status.Valid() {
		http.Error(w, fmt.Sprintf("unknown status %q", req.Status), http.StatusBadRequest)
		return
	}
	name := chi.URLParam(r, "name")
	if err := a.Reg.Heartbeat(name, req.Status, req.Mode, req.Metrics); err != nil {
		writeErr(w, err)
		return
	}
	agent, err := a.Reg.Get(name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// setAgentStatus handles POST /api/v1/agents/{name}/status
func (a *API) setAgentStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if !req.Status.Valid() {
		http.Error(w, fmt.Sprintf("unknown status %q", req.Status), http.StatusBadRequest)
		return
	}
	if err := a.Reg.SetStatus(chi.URLParam(r, "name"), req.Status); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// retireAgent handles POST /api/v1/agents/{name}/retire
func (a *API) retireAgent(w http.ResponseWriter, r *http.Request) {
	if err := a.Reg.Retire(chi.URLParam(r, "name")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// unretireAgent handles POST /api/v1/agents/{name}/unretire
func (a *API) unretireAgent(w http.ResponseWriter, r *http.Request) {
	if err := a.Reg.Unretire(chi.URLParam(r, "name")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// nextTask handles GET /api/v1/agents/{name}/next. It is a dry-run read:
// the task is not claimed, dispatch happens on the tick.
func (a *API) nextTask(w http.ResponseWriter, r *http.Request) {
	t, ok, err := a.Sched.NextTask(chi.URLParam(r, "name"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"task": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": t})
}
