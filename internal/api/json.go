package api

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"roadscout/internal/model"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps the engine error taxonomy onto problem responses: bad
// requests 400, missing sessions 404, infeasible routes 422 with the
// reason spelled out, dead upstreams 502.
func writeError(w http.ResponseWriter, err error, instance string) {
	switch {
	case errors.Is(err, model.ErrConfiguration):
		writeProblem(w, http.StatusBadRequest, "Invalid request", err.Error(), instance)
	case errors.Is(err, model.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not found", err.Error(), instance)
	case errors.Is(err, model.ErrNoFeasibleRoute):
		writeProblem(w, http.StatusUnprocessableEntity, "No feasible route", err.Error(), instance)
	case errors.Is(err, model.ErrDegenerateInput):
		writeProblem(w, http.StatusUnprocessableEntity, "Degenerate input", err.Error(), instance)
	case errors.Is(err, model.ErrDataUnavailable):
		writeProblem(w, http.StatusBadGateway, "Upstream data unavailable", err.Error(), instance)
	default:
		writeProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), instance)
	}
}
