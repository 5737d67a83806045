package httpapi

import (
	"fmt"
	"net/http"
)

// status handles GET /api/v1/status
func (a *API) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Sched.Aggregate())
}

// reloadPlan handles POST /api/v1/plan/reload
func (a *API) reloadPlan(w http.ResponseWriter, r *http.Request) {
	if a.Reload == nil {
		http.Error(w, "plan reload not available", http.StatusNotImplemented)
		return
	}
	if err := a.Reload(); err != nil {
		http.Error(w, fmt.Sprintf("reload failed: %v", err), http.StatusUnprocessableEntity)
		return
	}
	a.Log.Info().Msg("fleet plan reloaded via API")
	w.WriteHeader(http.StatusNoContent)
}
