package api

import (
	"encoding/json"
	"net/http"
)

func (a *api) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	status := "available"
	code := http.StatusOK
	if !a.sched.Running() {
		status = "stopped"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
