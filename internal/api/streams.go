package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/momentum-mod/livestreams/internal/monitor"
)

type outcomeResponse struct {
	monitor.Outcome
	Errors []string `json:"errors"`
}

func newOutcomeResponse(out monitor.Outcome) outcomeResponse {
	errs := make([]string, 0, len(out.Errors))
	for _, err := range out.Errors {
		errs = append(errs, err.Error())
	}
	return outcomeResponse{Outcome: out, Errors: errs}
}

func (a *api) listStreamsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(a.state.Snapshot())
}

func (a *api) updateStreamsHandler(w http.ResponseWriter, r *http.Request) {
	// A pass runs to completion even if the admin client goes away.
	out, err := a.sched.Trigger(context.WithoutCancel(r.Context()))

	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.Header().Set(errorHeader, err.Error())
		w.WriteHeader(http.StatusBadGateway)
	}
	_ = json.NewEncoder(w).Encode(newOutcomeResponse(out))
}

const maxReconnectDelay = 5 * time.Minute

// reconnectHandler optionally waits ?seconds=N before reconnecting.
func (a *api) reconnectHandler(w http.ResponseWriter, r *http.Request) {
	var delay time.Duration
	if v := r.URL.Query().Get("seconds"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || time.Duration(n)*time.Second > maxReconnectDelay {
			a.errorResponse(w, r, http.StatusBadRequest, "seconds must be between 0 and 300")
			return
		}
		delay = time.Duration(n) * time.Second
	}

	if delay > 0 {
		a.logger.Info("delaying reconnect", zap.Duration("delay", delay))
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if err := a.sched.Reconnect(context.WithoutCancel(r.Context())); err != nil {
		a.errorResponse(w, r, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// restartHandler exits the process without draining; the supervisor restarts
// it and the store is rebuilt from the channel on start.
func (a *api) restartHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Warn("restart requested through admin api, exiting")

	w.WriteHeader(http.StatusAccepted)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	a.exit(0)
}
