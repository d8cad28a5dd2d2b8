package api

import (
	"encoding/json"
	"net/http"
)

type errorBody struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
}

// errorResponse writes a JSON error and mirrors the message in a header so the
// logging middleware can pick it up.
func (a *api) errorResponse(w http.ResponseWriter, _ *http.Request, status int, message string) {
	w.Header().Set(errorHeader, message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Status: status, Error: message})
}
