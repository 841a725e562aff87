// Package health serves the liveness and readiness probes.
//
// /healthz always answers 200 while the process can serve HTTP. /readyz runs
// every registered Checker and answers 503 when any of them fails. Both
// return {"status": "ok"|"fail", "checks": {...}}.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

const (
	statusOK   = "ok"
	statusFail = "fail"
)

// Checker is a named dependency probe. Check returns nil when healthy.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Result is the JSON body of both probes.
type Result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// OK reports whether every check passed.
func (r Result) OK() bool {
	return r.Status == statusOK
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction.
type Handler struct {
	checkers []Checker
}

// New creates a Handler that runs checkers in order on each /readyz request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)

	return &Handler{checkers: c}
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Result{Status: statusOK})
}

// Readyz is the readiness probe.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := h.Run(r.Context())

	status := http.StatusOK
	if res.Status != statusOK {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, res)
}

// Run evaluates every checker and reports the combined result. The CLI health
// command uses it without an HTTP server.
func (h *Handler) Run(ctx context.Context) Result {
	res := Result{Status: statusOK, Checks: make(map[string]string, len(h.checkers))}

	for _, c := range h.checkers {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Check(checkCtx)
		cancel()

		if err != nil {
			res.Checks[c.Name] = statusFail + ": " + err.Error()
			res.Status = statusFail

			continue
		}

		res.Checks[c.Name] = statusOK
	}

	return res
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
